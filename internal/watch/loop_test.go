package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/notify"
	"rvol-scanner/internal/rate"
	"rvol-scanner/internal/store"
)

var loopTime = time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)

// fakeFetcher serves canned prices and counts calls per ticker.
type fakeFetcher struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher(prices map[string]float64) *fakeFetcher {
	return &fakeFetcher{
		prices: prices,
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeFetcher) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ticker]++
	if err, ok := f.errs[ticker]; ok {
		return nil, err
	}
	px, ok := f.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("no price for %s", ticker)
	}
	return &models.Quote{Ticker: ticker, Current: px, Timestamp: loopTime}, nil
}

func (f *fakeFetcher) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type loopFixture struct {
	loop    *Loop
	store   store.DataStore
	fetcher *fakeFetcher
	clock   *time.Time
}

func newLoopFixture(t *testing.T, prices map[string]float64, bucketCap int) *loopFixture {
	t.Helper()

	dataStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "watch_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dataStore.Close() })

	logger := zerolog.Nop()
	sink := notify.NewSink(dataStore, logger, notify.NewNoOpSender(models.ChannelTelegram))
	fetcher := newFakeFetcher(prices)

	now := loopTime
	clockFn := func() time.Time { return now }

	bucket := rate.NewTokenBucketWithClock(bucketCap, clockFn)
	loop := NewLoop(dataStore, bucket, fetcher, sink, Config{
		Interval:     time.Minute,
		WatchlistCap: 60,
		TokenWait:    time.Millisecond,
	}, logger).WithClock(clockFn)

	return &loopFixture{loop: loop, store: dataStore, fetcher: fetcher, clock: &now}
}

func (fx *loopFixture) addPosition(t *testing.T, ticker string, side models.Side, qty, entry float64) *models.Position {
	t.Helper()
	p := &models.Position{Ticker: ticker, Side: side, Qty: qty, EntryPrice: entry, CreatedAt: loopTime}
	require.NoError(t, fx.store.CreatePosition(context.Background(), p))
	return p
}

func (fx *loopFixture) addAlert(t *testing.T, ticker string, kind models.AlertKind, threshold float64) *models.PriceAlert {
	t.Helper()
	a := &models.PriceAlert{Ticker: ticker, Kind: kind, ThresholdValue: threshold, Active: true, CreatedAt: loopTime}
	require.NoError(t, fx.store.CreateAlert(context.Background(), a))
	return a
}

func TestRunCycleUpdatesMarksAndFiresAlert(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"AAPL": 110}, 60)
	ctx := context.Background()

	p := fx.addPosition(t, "AAPL", models.SideLong, 10, 100)
	a := fx.addAlert(t, "AAPL", models.AlertTargetPct, 10)

	var events []TriggerEvent
	fx.loop.OnTrigger(func(ev TriggerEvent) { events = append(events, ev) })

	require.NoError(t, fx.loop.RunCycle(ctx))

	stored, err := fx.store.GetPositionByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentPrice)
	assert.InDelta(t, 110, *stored.CurrentPrice, 1e-9)

	records, err := fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fmt.Sprintf("alert-%d-20250602-1800", a.ID), records[0].DedupeKey)
	assert.Contains(t, records[0].Message, "*Alert Triggered* `AAPL`")

	alerts, err := fx.store.GetAlerts(ctx, store.AlertFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.NotNil(t, alerts[0].LastTriggeredAt)

	require.Len(t, events, 1)
	assert.Equal(t, "AAPL", events[0].Alert.Ticker)
	assert.InDelta(t, 100, events[0].PnL.Abs, 1e-9)
}

func TestRunCycleFiresOncePerMinute(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"AAPL": 110}, 60)
	ctx := context.Background()

	fx.addPosition(t, "AAPL", models.SideLong, 10, 100)
	fx.addAlert(t, "AAPL", models.AlertTargetPct, 10)

	// Two cycles inside the same minute share a dedupe key.
	require.NoError(t, fx.loop.RunCycle(ctx))
	require.NoError(t, fx.loop.RunCycle(ctx))

	records, err := fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// The next minute gets a fresh key.
	*fx.clock = loopTime.Add(time.Minute)
	require.NoError(t, fx.loop.RunCycle(ctx))

	records, err = fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunCycleBelowThresholdDoesNotFire(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"AAPL": 109}, 60)
	ctx := context.Background()

	fx.addPosition(t, "AAPL", models.SideLong, 10, 100)
	fx.addAlert(t, "AAPL", models.AlertTargetPct, 10)

	require.NoError(t, fx.loop.RunCycle(ctx))

	records, err := fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunCycleAlertWithoutPositionIsSkipped(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"MSFT": 500}, 60)
	ctx := context.Background()

	fx.addAlert(t, "MSFT", models.AlertTargetAbs, 1)

	require.NoError(t, fx.loop.RunCycle(ctx))

	// The ticker is still polled (it is on the watchlist) but evaluation
	// needs an open position for the entry price.
	assert.Equal(t, 1, fx.fetcher.callCount("MSFT"))

	records, err := fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunCycleSurvivesQuoteFailures(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"GOOD": 110}, 60)
	fx.fetcher.errs["BAD"] = errors.New("provider down")
	ctx := context.Background()

	fx.addPosition(t, "BAD", models.SideLong, 1, 100)
	fx.addPosition(t, "GOOD", models.SideLong, 1, 100)
	fx.addAlert(t, "GOOD", models.AlertTargetPct, 5)

	require.NoError(t, fx.loop.RunCycle(ctx))

	// The failing ticker is skipped for the cycle; the healthy one still
	// gets its mark and alert.
	records, err := fx.store.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Message, "GOOD")
}

func TestRunCycleRespectsRateLimit(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"AAA": 10, "BBB": 10, "CCC": 10}, 1)
	ctx := context.Background()

	fx.addPosition(t, "AAA", models.SideLong, 1, 10)
	fx.addPosition(t, "BBB", models.SideLong, 1, 10)
	fx.addPosition(t, "CCC", models.SideLong, 1, 10)

	require.NoError(t, fx.loop.RunCycle(ctx))

	// A one-token bucket with a frozen clock allows exactly one fetch.
	assert.Equal(t, 1, fx.fetcher.totalCalls())
}

func TestRunCycleStopsOnCancelledContext(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{"AAPL": 110}, 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.loop.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	fx := newLoopFixture(t, map[string]float64{}, 60)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.loop.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestBuildWatchlistSortedUnionWithCap(t *testing.T) {
	fx := newLoopFixture(t, nil, 60)

	alerts := []models.PriceAlert{
		{Ticker: "ZZZ"}, {Ticker: "AAA"}, {Ticker: "MMM"},
	}
	positions := []models.Position{
		{Ticker: "AAA"}, {Ticker: "BBB"},
	}

	got := fx.loop.buildWatchlist(alerts, positions)
	assert.Equal(t, []string{"AAA", "BBB", "MMM", "ZZZ"}, got)

	// Cap bounds the list after sorting.
	fx.loop.watchlistCap = 2
	got = fx.loop.buildWatchlist(alerts, positions)
	assert.Equal(t, []string{"AAA", "BBB"}, got)
}
