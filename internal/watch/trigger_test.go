package watch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rvol-scanner/internal/models"
)

func f(v float64) *float64 { return &v }

func TestShouldTriggerTargetPct(t *testing.T) {
	// Entry 100, threshold 10%: fires at 110, not at 109.
	assert.True(t, ShouldTrigger(models.AlertTargetPct, f(100), 110, 10))
	assert.False(t, ShouldTrigger(models.AlertTargetPct, f(100), 109, 10))

	// Exactly at threshold fires.
	assert.True(t, ShouldTrigger(models.AlertTargetPct, f(50), 55, 10))

	// Zero entry can never satisfy a percent move.
	assert.False(t, ShouldTrigger(models.AlertTargetPct, f(0), 1000, 10))
}

func TestShouldTriggerTargetAbs(t *testing.T) {
	// Entry 50, threshold 3: fires at 53 and above.
	assert.True(t, ShouldTrigger(models.AlertTargetAbs, f(50), 53, 3))
	assert.True(t, ShouldTrigger(models.AlertTargetAbs, f(50), 54.5, 3))
	assert.False(t, ShouldTrigger(models.AlertTargetAbs, f(50), 52.99, 3))
}

func TestShouldTriggerStop(t *testing.T) {
	// Stop threshold 96: price 95 is at-or-below, 96 is too, 96.01 is not.
	assert.True(t, ShouldTrigger(models.AlertStop, f(100), 95, 96))
	assert.True(t, ShouldTrigger(models.AlertStop, f(100), 96, 96))
	assert.False(t, ShouldTrigger(models.AlertStop, f(100), 96.01, 96))
}

func TestShouldTriggerNilEntry(t *testing.T) {
	assert.False(t, ShouldTrigger(models.AlertTargetPct, nil, 1000, 1))
	assert.False(t, ShouldTrigger(models.AlertTargetAbs, nil, 1000, 1))
	assert.False(t, ShouldTrigger(models.AlertStop, nil, 0.01, 100))
}

func TestShouldTriggerUnknownKind(t *testing.T) {
	assert.False(t, ShouldTrigger(models.AlertKind("trailing_stop"), f(100), 200, 1))
	assert.False(t, ShouldTrigger(models.AlertKind(""), f(100), 200, 1))
}

func TestComputePnLLong(t *testing.T) {
	pnl := ComputePnL(models.SideLong, 100, 110, 5)
	assert.InDelta(t, 50, pnl.Abs, 1e-9)
	assert.True(t, pnl.HasPct)
	assert.InDelta(t, 10, pnl.Pct, 1e-9)

	pnl = ComputePnL(models.SideLong, 100, 90, 5)
	assert.InDelta(t, -50, pnl.Abs, 1e-9)
	assert.InDelta(t, -10, pnl.Pct, 1e-9)
}

func TestComputePnLShort(t *testing.T) {
	pnl := ComputePnL(models.SideShort, 100, 90, 5)
	assert.InDelta(t, 50, pnl.Abs, 1e-9)
	assert.InDelta(t, 10, pnl.Pct, 1e-9)

	pnl = ComputePnL(models.SideShort, 100, 110, 5)
	assert.InDelta(t, -50, pnl.Abs, 1e-9)
	assert.InDelta(t, -10, pnl.Pct, 1e-9)
}

func TestComputePnLZeroEntryHasNoPct(t *testing.T) {
	pnl := ComputePnL(models.SideLong, 0, 10, 2)
	assert.InDelta(t, 20, pnl.Abs, 1e-9)
	assert.False(t, pnl.HasPct)
}

func TestFormatTriggerMessage(t *testing.T) {
	alert := models.PriceAlert{Ticker: "AAPL", Kind: models.AlertTargetPct, ThresholdValue: 10}
	pnl := ComputePnL(models.SideLong, 100, 110, 2)

	msg := FormatTriggerMessage(alert, f(100), 110, &pnl)

	assert.True(t, strings.HasPrefix(msg, "*Alert Triggered* `AAPL`"))
	assert.Contains(t, msg, "Entry: $100.00")
	assert.Contains(t, msg, "Current: $110.00")
	assert.Contains(t, msg, "PnL: $+20.00 (+10.00%)")
	assert.Contains(t, msg, "`target_pct` @ 10.00")
}

func TestFormatTriggerMessageWithoutEntry(t *testing.T) {
	alert := models.PriceAlert{Ticker: "TSLA", Kind: models.AlertStop, ThresholdValue: 96}

	msg := FormatTriggerMessage(alert, nil, 95, nil)

	assert.NotContains(t, msg, "Entry:")
	assert.NotContains(t, msg, "PnL:")
	assert.Contains(t, msg, "Current: $95.00")
}
