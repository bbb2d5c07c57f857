package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rvol-scanner/internal/portfolio"
	"rvol-scanner/internal/scan"
	"rvol-scanner/internal/store"
)

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show portfolio PnL and the equity curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			positions, err := app.Store.GetPositions(ctx, store.PositionFilter{})
			if err != nil {
				return err
			}

			overrides, err := app.Store.LoadSettings(ctx)
			if err != nil {
				return err
			}
			capital := app.Config.Capital.Starting
			if v, ok := overrides["starting_capital"]; ok {
				if f, ok := v.(float64); ok {
					capital = f
				}
			}

			summary := portfolio.Summarize(positions, capital, time.Now().UTC())

			if output.IsJSON() {
				return output.JSON(summary)
			}

			output.Bold("Portfolio")
			output.Printf("  Starting Capital: $%.2f\n", summary.StartingCapital)
			output.Printf("  Current Capital:  $%.2f\n", summary.CurrentCapital)
			output.Printf("  Realized PnL:     %s\n", output.FormatPnL(summary.RealizedPnL))
			output.Printf("  Unrealized PnL:   %s\n", output.FormatPnL(summary.UnrealizedPnL))
			output.Println()

			table := NewTable(output, "TIME", "EVENT", "REALIZED", "EQUITY")
			for _, pt := range summary.EquitySeries {
				table.AddRow(
					pt.Timestamp.Local().Format("2006-01-02 15:04"),
					pt.Label,
					fmt.Sprintf("$%.2f", pt.Realized),
					fmt.Sprintf("$%.2f", pt.Equity),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View and change screener settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show effective screener settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			overrides, err := app.Store.LoadSettings(cmd.Context())
			if err != nil {
				return err
			}
			cfg := scan.EffectiveConfig(app.Config.ScanSnapshot(), overrides)

			if output.IsJSON() {
				return output.JSON(cfg)
			}

			output.Bold("Screener Settings")
			output.Printf("  Price Range:    $%.2f - $%.2f\n", cfg.PriceMin, cfg.PriceMax)
			output.Printf("  Min RVOL:       %.2f\n", cfg.MinRvol)
			output.Printf("  Min %% Change:   %.2f%%\n", cfg.MinPctChange)
			output.Printf("  Volume Cap:     %d\n", cfg.VolumeCap)
			output.Printf("  Top N:          %d\n", cfg.TopN)
			return nil
		},
	})

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Override one screener setting",
		Long: `Override a screener setting stored in the database. The override is
merged over the configured defaults on every batch.

Keys: price_min, price_max, min_rvol, min_pct_change, volume_cap, topN,
starting_capital`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			var value float64
			if _, err := fmt.Sscanf(args[1], "%f", &value); err != nil {
				return fmt.Errorf("value must be numeric, got %q", args[1])
			}

			merged, err := app.Store.SaveSettings(cmd.Context(), map[string]interface{}{args[0]: value})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(merged)
			}
			output.Success("%s = %v", args[0], value)
			return nil
		},
	}
	cmd.AddCommand(setCmd)

	return cmd
}
