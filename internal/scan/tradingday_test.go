package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestDayKeyUsesMarketLocalDate(t *testing.T) {
	loc := nyLocation(t)

	// 2025-06-03 01:30 UTC is still 2025-06-02 in New York (EDT, UTC-4).
	late := time.Date(2025, 6, 3, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-02", DayKey(late, loc))

	// After 04:00 UTC the local date rolls over.
	morning := time.Date(2025, 6, 3, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-03", DayKey(morning, loc))
}

func TestDayWindowCoversLocalDay(t *testing.T) {
	loc := nyLocation(t)

	at := time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)
	start, end := DayWindow(at, loc)

	// Local midnight EDT is 04:00 UTC.
	assert.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 6, 3, 4, 0, 0, 0, time.UTC), end)

	assert.False(t, at.Before(start))
	assert.True(t, at.Before(end))
}

func TestDayWindowAcrossDSTTransition(t *testing.T) {
	loc := nyLocation(t)

	// 2025-03-09 is the spring-forward date; the local day is 23 hours.
	at := time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC)
	start, end := DayWindow(at, loc)

	assert.Equal(t, 23*time.Hour, end.Sub(start))
	assert.Equal(t, "2025-03-09", DayKey(start, loc))
}

func TestSessionWindow(t *testing.T) {
	loc := nyLocation(t)

	at := time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)
	open, close, err := SessionWindow(at, loc, "09:30", "16:00")
	require.NoError(t, err)

	// 09:30 EDT is 13:30 UTC; 16:00 EDT is 20:00 UTC.
	assert.Equal(t, time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), open)
	assert.Equal(t, time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC), close)
}

func TestSessionWindowRejectsBadTimes(t *testing.T) {
	loc := nyLocation(t)
	at := time.Now()

	_, _, err := SessionWindow(at, loc, "not-a-time", "16:00")
	assert.Error(t, err)

	_, _, err = SessionWindow(at, loc, "09:30", "bogus")
	assert.Error(t, err)
}

func TestMarketLocationIsStable(t *testing.T) {
	first := MarketLocation()
	second := MarketLocation()
	assert.Same(t, first, second)
}
