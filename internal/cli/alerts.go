package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/store"
)

func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage price alerts",
	}

	cmd.AddCommand(newAlertsListCmd(app))
	cmd.AddCommand(newAlertsAddCmd(app))
	cmd.AddCommand(newAlertsSetActiveCmd(app, "enable", true))
	cmd.AddCommand(newAlertsSetActiveCmd(app, "disable", false))
	return cmd
}

func newAlertsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List price alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			filter := store.AlertFilter{}
			if ticker, _ := cmd.Flags().GetString("ticker"); ticker != "" {
				filter.Ticker = strings.ToUpper(ticker)
			}
			if activeOnly, _ := cmd.Flags().GetBool("active"); activeOnly {
				active := true
				filter.Active = &active
			}

			alerts, err := app.Store.GetAlerts(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(alerts)
			}
			if len(alerts) == 0 {
				output.Dim("No alerts")
				return nil
			}

			table := NewTable(output, "ID", "TICKER", "KIND", "THRESHOLD", "ACTIVE", "LAST TRIGGERED")
			for _, a := range alerts {
				active := output.Red("no")
				if a.Active {
					active = output.Green("yes")
				}
				last := "-"
				if a.LastTriggeredAt != nil {
					last = a.LastTriggeredAt.Local().Format("2006-01-02 15:04")
				}
				table.AddRow(
					strconv.FormatInt(a.ID, 10),
					a.Ticker,
					string(a.Kind),
					fmt.Sprintf("%.2f", a.ThresholdValue),
					active,
					last,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("ticker", "", "filter by ticker")
	cmd.Flags().Bool("active", false, "only active alerts")
	return cmd
}

func newAlertsAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <ticker>",
		Short: "Create a price alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			kindStr, _ := cmd.Flags().GetString("kind")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			trailing, _ := cmd.Flags().GetBool("trailing")

			kind := models.AlertKind(kindStr)
			switch kind {
			case models.AlertTargetPct, models.AlertTargetAbs, models.AlertStop:
			default:
				return fmt.Errorf("kind must be target_pct, target_abs or stop, got %q", kindStr)
			}

			a := &models.PriceAlert{
				Ticker:         strings.ToUpper(args[0]),
				Kind:           kind,
				ThresholdValue: threshold,
				Trailing:       trailing,
				Active:         true,
				CreatedAt:      time.Now().UTC(),
			}
			if err := app.Store.CreateAlert(cmd.Context(), a); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(a)
			}
			output.Success("Alert %d: %s %s @ %.2f", a.ID, a.Ticker, a.Kind, a.ThresholdValue)
			return nil
		},
	}

	cmd.Flags().String("kind", "", "alert kind (target_pct|target_abs|stop)")
	cmd.Flags().Float64("threshold", 0, "threshold value")
	cmd.Flags().Bool("trailing", false, "mark alert as trailing")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("threshold")
	return cmd
}

func newAlertsSetActiveCmd(app *App, verb string, active bool) *cobra.Command {
	short := "Enable an alert"
	if !active {
		short = "Disable an alert"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}
			if err := app.Store.SetAlertActive(cmd.Context(), id, active); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": id, "active": active})
			}
			output.Success("Alert %d %sd", id, verb)
			return nil
		},
	}
}
