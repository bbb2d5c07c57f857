// Package scan implements the filter/score/dedup engine applied to each
// ingested batch of market-scan rows.
package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/notify"
	"rvol-scanner/internal/store"
)

// Engine consumes one ingestion batch, applies admission filters, scores and
// keeps the top-N rows, merges them into the per-trading-day candidate set,
// and offers one notification per resulting candidate. Re-processing the
// same batch id is safe: the per-day upsert prevents duplicate candidates
// and the sink is idempotent on the dedupe key.
type Engine struct {
	store  store.DataStore
	sink   *notify.Sink
	scorer Scorer
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a filter/score engine.
func NewEngine(dataStore store.DataStore, sink *notify.Sink, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  dataStore,
		sink:   sink,
		scorer: RvolScorer{},
		loc:    MarketLocation(),
		logger: logger,
		now:    time.Now,
	}
}

// WithScorer swaps the scoring strategy.
func (e *Engine) WithScorer(s Scorer) *Engine {
	e.scorer = s
	return e
}

// WithClock injects a clock (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// passesFilters is the admission predicate. A row with missing percent
// change fails admission; it is not a pass-through.
func passesFilters(row models.ScanRow, cfg models.ScanConfig) bool {
	if row.Price < cfg.PriceMin || row.Price > cfg.PriceMax {
		return false
	}
	if row.Rvol < cfg.MinRvol {
		return false
	}
	if row.VolumeOrZero() > cfg.VolumeCap {
		return false
	}
	if row.PctChange == nil || *row.PctChange < cfg.MinPctChange {
		return false
	}
	return true
}

// ProcessBatch runs the engine over one batch under a point-in-time config
// snapshot and returns the stored candidates.
func (e *Engine) ProcessBatch(ctx context.Context, batchID string, cfg models.ScanConfig) ([]models.Candidate, error) {
	rows, err := e.store.GetScanRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading batch %s: %w", batchID, err)
	}

	type scored struct {
		row   models.ScanRow
		score float64
	}

	var admitted []scored
	for _, row := range rows {
		if passesFilters(row, cfg) {
			admitted = append(admitted, scored{row: row, score: e.scorer.Score(row)})
		}
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		if admitted[i].score != admitted[j].score {
			return admitted[i].score > admitted[j].score
		}
		return admitted[i].row.Ticker < admitted[j].row.Ticker
	})

	top := admitted
	if len(top) > cfg.TopN {
		top = top[:cfg.TopN]
	}

	now := e.now().UTC()
	dayKey := DayKey(now, e.loc)

	candidates := make([]models.Candidate, 0, len(top))
	for _, sc := range top {
		candidates = append(candidates, models.Candidate{
			BatchID: batchID,
			Ticker:  sc.row.Ticker,
			Score:   sc.score,
			Reasons: models.Reasons{
				Price:     sc.row.Price,
				Rvol:      sc.row.Rvol,
				PctChange: derefOrZero(sc.row.PctChange),
				Volume:    sc.row.VolumeOrZero(),
				Rules: models.RuleSet{
					PriceRange:   [2]float64{cfg.PriceMin, cfg.PriceMax},
					MinRvol:      cfg.MinRvol,
					MinPctChange: cfg.MinPctChange,
					VolumeCap:    cfg.VolumeCap,
				},
			},
			DayKey:      dayKey,
			FirstSeenAt: now,
			LastSeenAt:  now,
		})
	}

	stored, err := e.store.UpsertCandidates(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("upserting candidates for batch %s: %w", batchID, err)
	}

	for _, c := range stored {
		msg := fmt.Sprintf("TOP PICK %s: Px %.2f RVOL %.2f Score %.2f",
			c.Ticker, c.Reasons.Price, c.Reasons.Rvol, c.Score)
		err := e.sink.Send(ctx, notify.Message{
			Channel:   models.ChannelTelegram,
			Ticker:    c.Ticker,
			Text:      msg,
			DedupeKey: fmt.Sprintf("topN-%s-%s", batchID, c.Ticker),
		})
		if err != nil {
			// Storage failure on the sink; the candidate itself is already
			// committed, so log and continue with the rest.
			e.logger.Error().Err(err).Str("ticker", c.Ticker).Msg("Top-pick notification failed")
			continue
		}
		if err := e.store.MarkCandidateNotified(ctx, c.ID); err != nil {
			e.logger.Error().Err(err).Str("ticker", c.Ticker).Msg("Failed to mark candidate notified")
		}
	}

	e.logger.Info().
		Str("batch_id", batchID).
		Int("rows", len(rows)).
		Int("admitted", len(admitted)).
		Int("kept", len(stored)).
		Msg("Batch processed")

	return stored, nil
}

// EffectiveConfig merges stored settings overrides onto the configured
// defaults, producing the point-in-time snapshot used for one batch.
func EffectiveConfig(defaults models.ScanConfig, overrides map[string]interface{}) models.ScanConfig {
	cfg := defaults
	if v, ok := asFloat(overrides["price_min"]); ok {
		cfg.PriceMin = v
	}
	if v, ok := asFloat(overrides["price_max"]); ok {
		cfg.PriceMax = v
	}
	if v, ok := asFloat(overrides["min_rvol"]); ok {
		cfg.MinRvol = v
	}
	if v, ok := asFloat(overrides["min_pct_change"]); ok {
		cfg.MinPctChange = v
	}
	if v, ok := asFloat(overrides["volume_cap"]); ok {
		cfg.VolumeCap = int64(v)
	}
	if v, ok := asFloat(overrides["topN"]); ok && int(v) > 0 {
		cfg.TopN = int(v)
	}
	return cfg
}

// asFloat coerces JSON-decoded numeric values.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func derefOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
