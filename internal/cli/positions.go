package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/portfolio"
	"rvol-scanner/internal/store"
)

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Manage positions",
	}

	cmd.AddCommand(newPositionsListCmd(app))
	cmd.AddCommand(newPositionsAddCmd(app))
	cmd.AddCommand(newPositionsCloseCmd(app))
	return cmd
}

func newPositionsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			openOnly, _ := cmd.Flags().GetBool("open")
			positions, err := app.Store.GetPositions(cmd.Context(), store.PositionFilter{OpenOnly: openOnly})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No positions")
				return nil
			}

			table := NewTable(output, "ID", "TICKER", "SIDE", "QTY", "ENTRY", "CURRENT", "PNL", "STATUS")
			for _, p := range positions {
				current := "-"
				if p.CurrentPrice != nil {
					current = fmt.Sprintf("$%.2f", *p.CurrentPrice)
				}
				status := "open"
				pnl := portfolio.Unrealized(p)
				if !p.Open() {
					status = "closed"
					pnl = portfolio.Realized(p)
					if p.ExitPrice != nil {
						current = fmt.Sprintf("$%.2f", *p.ExitPrice)
					}
				}
				table.AddRow(
					strconv.FormatInt(p.ID, 10),
					p.Ticker,
					string(p.Side),
					fmt.Sprintf("%.0f", p.Qty),
					fmt.Sprintf("$%.2f", p.EntryPrice),
					current,
					output.FormatPnL(pnl),
					status,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Bool("open", false, "only open positions")
	return cmd
}

func newPositionsAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <ticker>",
		Short: "Open a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			side, _ := cmd.Flags().GetString("side")
			qty, _ := cmd.Flags().GetFloat64("qty")
			entry, _ := cmd.Flags().GetFloat64("entry")
			notes, _ := cmd.Flags().GetString("notes")

			if side != string(models.SideLong) && side != string(models.SideShort) {
				return fmt.Errorf("side must be long or short, got %q", side)
			}
			if qty <= 0 {
				return fmt.Errorf("qty must be positive, got %.2f", qty)
			}

			p := &models.Position{
				Ticker:     strings.ToUpper(args[0]),
				Side:       models.Side(side),
				Qty:        qty,
				EntryPrice: entry,
				Notes:      notes,
				CreatedAt:  time.Now().UTC(),
			}
			if err := app.Store.CreatePosition(cmd.Context(), p); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("Opened %s %s x%.0f @ $%.2f (id %d)", p.Side, p.Ticker, p.Qty, p.EntryPrice, p.ID)
			return nil
		},
	}

	cmd.Flags().String("side", "long", "position side (long|short)")
	cmd.Flags().Float64("qty", 0, "quantity")
	cmd.Flags().Float64("entry", 0, "entry price")
	cmd.Flags().String("notes", "", "free-form notes")
	cmd.MarkFlagRequired("qty")
	cmd.MarkFlagRequired("entry")
	return cmd
}

func newPositionsCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a position at an exit price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid position id %q", args[0])
			}
			exit, _ := cmd.Flags().GetFloat64("exit")

			if err := app.Store.ClosePosition(cmd.Context(), id, exit, time.Now().UTC()); err != nil {
				return err
			}

			p, err := app.Store.GetPositionByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("Closed %s @ $%.2f, realized %s", p.Ticker, exit, output.FormatPnL(portfolio.Realized(*p)))
			return nil
		},
	}

	cmd.Flags().Float64("exit", 0, "exit price")
	cmd.MarkFlagRequired("exit")
	return cmd
}
