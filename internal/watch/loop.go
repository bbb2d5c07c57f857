// Package watch implements the continuous price-watch loop: it polls quotes
// for a bounded watchlist, updates position marks, and evaluates alert
// trigger conditions.
package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/notify"
	"rvol-scanner/internal/quote"
	"rvol-scanner/internal/rate"
	"rvol-scanner/internal/store"
)

// TriggerEvent describes one fired alert, published to the optional hook
// (the HTTP server uses it to broadcast over websockets).
type TriggerEvent struct {
	Alert models.PriceAlert
	Price float64
	PnL   PnL
}

// Loop is the long-lived watch cycle. It must survive an unbounded sequence
// of per-ticker failures: quote errors leave the ticker without a price for
// the cycle, rate-limiter exhaustion skips it after a short pause, and
// nothing short of context cancellation stops the loop.
type Loop struct {
	store        store.DataStore
	bucket       *rate.TokenBucket
	quotes       quote.Fetcher
	sink         *notify.Sink
	interval     time.Duration
	watchlistCap int
	tokenWait    time.Duration
	logger       zerolog.Logger
	now          func() time.Time
	onTrigger    func(TriggerEvent)
}

// Config holds watch-loop construction parameters.
type Config struct {
	Interval     time.Duration
	WatchlistCap int
	TokenWait    time.Duration
}

// NewLoop creates a watch loop. The token bucket is shared by reference
// with the rest of the process.
func NewLoop(dataStore store.DataStore, bucket *rate.TokenBucket, quotes quote.Fetcher, sink *notify.Sink, cfg Config, logger zerolog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.WatchlistCap <= 0 {
		cfg.WatchlistCap = 60
	}
	if cfg.TokenWait <= 0 {
		cfg.TokenWait = 500 * time.Millisecond
	}
	return &Loop{
		store:        dataStore,
		bucket:       bucket,
		quotes:       quotes,
		sink:         sink,
		interval:     cfg.Interval,
		watchlistCap: cfg.WatchlistCap,
		tokenWait:    cfg.TokenWait,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock injects a clock (tests).
func (l *Loop) WithClock(now func() time.Time) *Loop {
	l.now = now
	return l
}

// OnTrigger registers a hook invoked after each fired alert.
func (l *Loop) OnTrigger(fn func(TriggerEvent)) *Loop {
	l.onTrigger = fn
	return l
}

// Run executes cycles until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Dur("interval", l.interval).
		Int("watchlist_cap", l.watchlistCap).
		Msg("Watch loop started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("Watch loop stopped")
				return ctx.Err()
			}
			// Cycle errors are storage-level; log and keep going.
			l.logger.Error().Err(err).Msg("Watch cycle failed")
		}

		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Watch loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one watch iteration: build the watchlist, fetch prices
// under the rate limit, update marks, then evaluate alerts. Marks are always
// written before alerts are evaluated, so every evaluation sees this cycle's
// price.
func (l *Loop) RunCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	active := true
	alerts, err := l.store.GetAlerts(ctx, store.AlertFilter{Active: &active})
	if err != nil {
		return fmt.Errorf("loading alerts: %w", err)
	}

	openPositions, err := l.store.GetPositions(ctx, store.PositionFilter{OpenOnly: true})
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}

	positionsByTicker := make(map[string]*models.Position, len(openPositions))
	for i := range openPositions {
		positionsByTicker[openPositions[i].Ticker] = &openPositions[i]
	}

	watchlist := l.buildWatchlist(alerts, openPositions)
	prices := l.fetchPrices(ctx, watchlist)

	for i := range openPositions {
		p := &openPositions[i]
		px, ok := prices[p.Ticker]
		if !ok {
			continue
		}
		if err := l.store.UpdatePositionPrice(ctx, p.ID, px); err != nil {
			l.logger.Error().Err(err).Str("ticker", p.Ticker).Msg("Failed to update mark price")
			continue
		}
		p.CurrentPrice = &px
	}

	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}
		px, ok := prices[alert.Ticker]
		if !ok {
			continue
		}
		position, ok := positionsByTicker[alert.Ticker]
		if !ok {
			continue
		}
		l.evaluateAlert(ctx, alert, position, px)
	}

	return nil
}

// buildWatchlist returns the sorted union of alert and open-position
// tickers, truncated to the cap to bound external call volume per cycle.
func (l *Loop) buildWatchlist(alerts []models.PriceAlert, positions []models.Position) []string {
	set := make(map[string]struct{})
	for _, a := range alerts {
		set[a.Ticker] = struct{}{}
	}
	for _, p := range positions {
		set[p.Ticker] = struct{}{}
	}

	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	if len(tickers) > l.watchlistCap {
		tickers = tickers[:l.watchlistCap]
	}
	return tickers
}

// fetchPrices draws from the shared token bucket for each ticker. Exhaustion
// pauses briefly and moves on; quote failures leave the ticker without a
// price for this cycle.
func (l *Loop) fetchPrices(ctx context.Context, tickers []string) map[string]float64 {
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if ctx.Err() != nil {
			return prices
		}
		if !l.bucket.Take(1) {
			select {
			case <-ctx.Done():
				return prices
			case <-time.After(l.tokenWait):
			}
			continue
		}

		q, err := l.quotes.GetQuote(ctx, t)
		if err != nil {
			l.logger.Debug().Err(err).Str("ticker", t).Msg("Quote fetch failed")
			continue
		}
		prices[t] = q.Current
	}
	return prices
}

func (l *Loop) evaluateAlert(ctx context.Context, alert models.PriceAlert, position *models.Position, price float64) {
	entry := position.EntryPrice
	if !ShouldTrigger(alert.Kind, &entry, price, alert.ThresholdValue) {
		return
	}

	pnl := ComputePnL(position.Side, entry, price, position.Qty)
	msg := FormatTriggerMessage(alert, &entry, price, &pnl)

	// One notification per alert per minute: a condition held across a
	// minute boundary fires once per minute, not once per cycle.
	dedupe := fmt.Sprintf("alert-%d-%s", alert.ID, l.now().UTC().Format("20060102-1504"))

	if err := l.sink.Send(ctx, notify.Message{
		Channel:   models.ChannelTelegram,
		Ticker:    alert.Ticker,
		Text:      msg,
		DedupeKey: dedupe,
		ParseMode: "Markdown",
	}); err != nil {
		l.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("Alert notification failed")
		return
	}

	now := l.now().UTC()
	if err := l.store.TouchAlertTriggered(ctx, alert.ID, now); err != nil {
		l.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("Failed to record alert trigger")
	}

	l.logger.Info().
		Str("event", "alert_triggered").
		Int64("alert_id", alert.ID).
		Str("ticker", alert.Ticker).
		Str("kind", string(alert.Kind)).
		Float64("price", price).
		Msg("Alert triggered")

	if l.onTrigger != nil {
		l.onTrigger(TriggerEvent{Alert: alert, Price: price, PnL: pnl})
	}
}
