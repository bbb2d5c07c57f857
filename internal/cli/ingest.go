package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/scan"
	"rvol-scanner/internal/store"
)

// ingestFile mirrors the HTTP ingestion payload for file-based batches.
type ingestFile struct {
	BatchID string `json:"batch_id"`
	Items   []struct {
		Ticker        string   `json:"ticker"`
		Name          string   `json:"name"`
		Rvol          float64  `json:"rvol"`
		Price         float64  `json:"price"`
		PctChange     *float64 `json:"pct_change"`
		Volume        *int64   `json:"volume"`
		MarketCap     *int64   `json:"market_cap"`
		Sector        string   `json:"sector"`
		AnalystRating string   `json:"analyst_rating"`
	} `json:"items"`
}

func newIngestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Ingest a scan batch from a JSON file and run the screener",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}

			var payload ingestFile
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("parsing batch file: %w", err)
			}
			if payload.BatchID == "" {
				payload.BatchID = uuid.NewString()
			}

			if existing, err := app.Store.GetBatch(ctx, payload.BatchID); err != nil {
				return err
			} else if existing != nil {
				return fmt.Errorf("batch %s already ingested", payload.BatchID)
			}

			batch := &models.Batch{ID: payload.BatchID, IngestedAt: time.Now().UTC()}
			if err := app.Store.CreateBatch(ctx, batch); err != nil {
				return err
			}

			rows := make([]models.ScanRow, 0, len(payload.Items))
			for _, it := range payload.Items {
				rows = append(rows, models.ScanRow{
					BatchID:       payload.BatchID,
					Ticker:        it.Ticker,
					Name:          it.Name,
					Rvol:          it.Rvol,
					Price:         it.Price,
					PctChange:     it.PctChange,
					Volume:        it.Volume,
					MarketCap:     it.MarketCap,
					Sector:        it.Sector,
					AnalystRating: it.AnalystRating,
				})
			}
			if err := app.Store.InsertScanRows(ctx, rows); err != nil {
				return err
			}

			overrides, err := app.Store.LoadSettings(ctx)
			if err != nil {
				return err
			}
			cfg := scan.EffectiveConfig(app.Config.ScanSnapshot(), overrides)

			kept, err := app.Engine.ProcessBatch(ctx, payload.BatchID, cfg)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"batch_id": payload.BatchID,
					"rows":     len(rows),
					"kept":     len(kept),
				})
			}

			output.Success("Batch %s: %d rows ingested, %d top picks", payload.BatchID, len(rows), len(kept))
			if len(kept) == 0 {
				return nil
			}

			table := NewTable(output, "TICKER", "PRICE", "RVOL", "SCORE")
			for _, c := range kept {
				table.AddRow(
					c.Ticker,
					fmt.Sprintf("$%.2f", c.Reasons.Price),
					fmt.Sprintf("%.2f", c.Reasons.Rvol),
					fmt.Sprintf("%.2f", c.Score),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newCandidatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List today's top-pick candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			limit, _ := cmd.Flags().GetInt("limit")

			loc := scan.MarketLocation()
			from, to, err := scan.SessionWindow(time.Now(), loc, "09:30", "16:00")
			if err != nil {
				return err
			}

			candidates, err := app.Store.ListCandidates(cmd.Context(), store.CandidateFilter{From: from, To: to, Limit: limit})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(candidates)
			}

			if len(candidates) == 0 {
				output.Dim("No candidates in today's session window")
				return nil
			}

			table := NewTable(output, "TICKER", "PRICE", "RVOL", "%CHG", "SCORE", "LAST SEEN")
			for _, c := range candidates {
				table.AddRow(
					c.Ticker,
					fmt.Sprintf("$%.2f", c.Reasons.Price),
					fmt.Sprintf("%.2f", c.Reasons.Rvol),
					output.FormatPercent(c.Reasons.PctChange),
					fmt.Sprintf("%.2f", c.Score),
					c.LastSeenAt.Local().Format("15:04:05"),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "maximum candidates to list")
	return cmd
}
