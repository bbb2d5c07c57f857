package watch

import (
	"fmt"
	"strings"

	"rvol-scanner/internal/models"
)

// ShouldTrigger evaluates the alert trigger predicate for one cycle. It is
// a stateless table: unknown kinds and alerts without an entry price never
// trigger.
func ShouldTrigger(kind models.AlertKind, entry *float64, price, threshold float64) bool {
	if entry == nil {
		return false
	}
	switch kind {
	case models.AlertTargetPct:
		if *entry == 0 {
			return false
		}
		return (price-*entry)/(*entry)*100.0 >= threshold
	case models.AlertTargetAbs:
		return price-*entry >= threshold
	case models.AlertStop:
		return price <= threshold
	default:
		return false
	}
}

// PnL is the realized-direction profit of a triggered alert.
type PnL struct {
	Abs    float64
	Pct    float64
	HasPct bool
}

// ComputePnL returns side-aware PnL: long profits when price exceeds entry,
// short when it falls below. Pct is only defined for a non-zero entry.
func ComputePnL(side models.Side, entry, price, qty float64) PnL {
	delta := price - entry
	if side == models.SideShort {
		delta = entry - price
	}
	p := PnL{Abs: delta * qty}
	if entry != 0 {
		p.Pct = delta / entry * 100.0
		p.HasPct = true
	}
	return p
}

// FormatTriggerMessage renders the human-readable alert notification.
func FormatTriggerMessage(alert models.PriceAlert, entry *float64, price float64, pnl *PnL) string {
	lines := []string{fmt.Sprintf("*Alert Triggered* `%s`", alert.Ticker)}
	if entry != nil {
		lines = append(lines, fmt.Sprintf("Entry: $%.2f", *entry))
	}
	lines = append(lines, fmt.Sprintf("Current: $%.2f", price))
	if pnl != nil && pnl.HasPct {
		lines = append(lines, fmt.Sprintf("PnL: $%+.2f (%+.2f%%)", pnl.Abs, pnl.Pct))
	}
	lines = append(lines, fmt.Sprintf("Alert: `%s` @ %.2f", alert.Kind, alert.ThresholdValue))
	return strings.Join(lines, "\n")
}
