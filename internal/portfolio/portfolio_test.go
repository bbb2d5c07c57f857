package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvol-scanner/internal/models"
)

func fp(v float64) *float64     { return &v }
func tp(t time.Time) *time.Time { return &t }

var (
	t0 = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	t2 = time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
)

func TestRealized(t *testing.T) {
	open := models.Position{Side: models.SideLong, Qty: 10, EntryPrice: 100}
	assert.Zero(t, Realized(open))

	closedLong := models.Position{Side: models.SideLong, Qty: 10, EntryPrice: 100, ExitPrice: fp(110), ClosedAt: tp(t1)}
	assert.InDelta(t, 100, Realized(closedLong), 1e-9)

	closedShort := models.Position{Side: models.SideShort, Qty: 10, EntryPrice: 100, ExitPrice: fp(90), ClosedAt: tp(t1)}
	assert.InDelta(t, 100, Realized(closedShort), 1e-9)
}

func TestUnrealized(t *testing.T) {
	marked := models.Position{Side: models.SideLong, Qty: 5, EntryPrice: 100, CurrentPrice: fp(104)}
	assert.InDelta(t, 20, Unrealized(marked), 1e-9)

	short := models.Position{Side: models.SideShort, Qty: 5, EntryPrice: 100, CurrentPrice: fp(104)}
	assert.InDelta(t, -20, Unrealized(short), 1e-9)

	// Without a mark the position carries at entry.
	unmarked := models.Position{Side: models.SideLong, Qty: 5, EntryPrice: 100}
	assert.Zero(t, Unrealized(unmarked))

	// Closed positions contribute nothing unrealized.
	closed := models.Position{Side: models.SideLong, Qty: 5, EntryPrice: 100, CurrentPrice: fp(120), ExitPrice: fp(110), ClosedAt: tp(t1)}
	assert.Zero(t, Unrealized(closed))
}

func TestSummarizeEmpty(t *testing.T) {
	now := t2
	summary := Summarize(nil, 10000, now)

	assert.InDelta(t, 10000, summary.StartingCapital, 1e-9)
	assert.InDelta(t, 10000, summary.CurrentCapital, 1e-9)
	assert.Zero(t, summary.RealizedPnL)
	assert.Zero(t, summary.UnrealizedPnL)

	require.Len(t, summary.EquitySeries, 2)
	assert.Equal(t, "Start", summary.EquitySeries[0].Label)
	assert.Equal(t, "Now", summary.EquitySeries[1].Label)
}

func TestSummarizeMixedPositions(t *testing.T) {
	positions := []models.Position{
		{Ticker: "AAA", Side: models.SideLong, Qty: 10, EntryPrice: 100, ExitPrice: fp(110), CreatedAt: t0, ClosedAt: tp(t1)},
		{Ticker: "BBB", Side: models.SideShort, Qty: 10, EntryPrice: 50, ExitPrice: fp(55), CreatedAt: t0, ClosedAt: tp(t2)},
		{Ticker: "CCC", Side: models.SideLong, Qty: 10, EntryPrice: 20, CurrentPrice: fp(22), CreatedAt: t1},
	}

	now := t2.Add(time.Hour)
	summary := Summarize(positions, 10000, now)

	// +100 on AAA, -50 on BBB, +20 open on CCC.
	assert.InDelta(t, 50, summary.RealizedPnL, 1e-9)
	assert.InDelta(t, 20, summary.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 10070, summary.CurrentCapital, 1e-9)

	require.Len(t, summary.EquitySeries, 4)

	series := summary.EquitySeries
	assert.Equal(t, "Start", series[0].Label)
	assert.Equal(t, t0, series[0].Timestamp)
	assert.InDelta(t, 10000, series[0].Equity, 1e-9)

	assert.Equal(t, "Closed AAA", series[1].Label)
	assert.InDelta(t, 10100, series[1].Equity, 1e-9)

	assert.Equal(t, "Closed BBB", series[2].Label)
	assert.InDelta(t, 10050, series[2].Equity, 1e-9)

	assert.Equal(t, "Now", series[3].Label)
	assert.Equal(t, now, series[3].Timestamp)
	assert.InDelta(t, 10070, series[3].Equity, 1e-9)
}

func TestSummarizeGroupsSimultaneousCloses(t *testing.T) {
	positions := []models.Position{
		{Ticker: "BBB", Side: models.SideLong, Qty: 1, EntryPrice: 10, ExitPrice: fp(12), CreatedAt: t0, ClosedAt: tp(t1)},
		{Ticker: "AAA", Side: models.SideLong, Qty: 1, EntryPrice: 10, ExitPrice: fp(14), CreatedAt: t0, ClosedAt: tp(t1)},
	}

	summary := Summarize(positions, 100, t2)

	require.Len(t, summary.EquitySeries, 3)
	// Tickers on a shared close timestamp are listed alphabetically.
	assert.Equal(t, "Closed AAA, BBB", summary.EquitySeries[1].Label)
	assert.InDelta(t, 106, summary.EquitySeries[1].Equity, 1e-9)
}
