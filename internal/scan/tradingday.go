package scan

import (
	"fmt"
	"sync"
	"time"
)

// MarketZone is the fixed reference time zone for trading-day boundaries.
// Candidate dedup is scoped to days in this zone, not to ingestion batches.
const MarketZone = "America/New_York"

var (
	marketLoc     *time.Location
	marketLocOnce sync.Once
)

// MarketLocation returns the reference market time zone, falling back to UTC
// when the zone database is unavailable.
func MarketLocation() *time.Location {
	marketLocOnce.Do(func() {
		loc, err := time.LoadLocation(MarketZone)
		if err != nil {
			loc = time.UTC
		}
		marketLoc = loc
	})
	return marketLoc
}

// DayWindow returns the [start, end) UTC instant range of the trading day
// containing t in the given zone. Day boundaries are local midnights, so the
// window is DST-safe.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// DayKey returns the local calendar date of t in the given zone, formatted
// YYYY-MM-DD. It identifies the trading day a candidate is deduplicated in.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// SessionWindow returns the [open, close) UTC range of the trading session
// on the local day containing t. Times are "HH:MM" in the given zone.
func SessionWindow(t time.Time, loc *time.Location, open, close string) (time.Time, time.Time, error) {
	var oh, om, ch, cm int
	if _, err := fmt.Sscanf(open, "%d:%d", &oh, &om); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing open time %q: %w", open, err)
	}
	if _, err := fmt.Sscanf(close, "%d:%d", &ch, &cm); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing close time %q: %w", close, err)
	}

	local := t.In(loc)
	openLocal := time.Date(local.Year(), local.Month(), local.Day(), oh, om, 0, 0, loc)
	closeLocal := time.Date(local.Year(), local.Month(), local.Day(), ch, cm, 0, 0, loc)
	return openLocal.UTC(), closeLocal.UTC(), nil
}
