package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.InDelta(t, 5.0, cfg.Scan.PriceMin, 1e-9)
	assert.InDelta(t, 20.0, cfg.Scan.PriceMax, 1e-9)
	assert.InDelta(t, 5.0, cfg.Scan.MinRvol, 1e-9)
	assert.InDelta(t, 1.0, cfg.Scan.MinPctChange, 1e-9)
	assert.Equal(t, int64(20_000_000), cfg.Scan.VolumeCap)
	assert.Equal(t, 5, cfg.Scan.TopN)

	assert.Equal(t, time.Minute, cfg.Watch.Interval)
	assert.Equal(t, 60, cfg.Watch.WatchlistCap)
	assert.Equal(t, 60, cfg.Watch.QuotesPerMin)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.TokenWaitTime)

	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Finnhub.BaseURL)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.False(t, cfg.Telegram.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
scan:
  min_rvol: 7.5
  top_n: 3
watch:
  interval: 30s
telegram:
  enabled: true
  bot_token: tok
  chat_id: "123"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.InDelta(t, 7.5, cfg.Scan.MinRvol, 1e-9)
	assert.Equal(t, 3, cfg.Scan.TopN)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, "tok", cfg.Telegram.BotToken)

	// Unset keys keep their defaults.
	assert.InDelta(t, 5.0, cfg.Scan.PriceMin, 1e-9)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := `
scan:
  price_min: 50
  price_max: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_min")
}

func TestValidate(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Scan.TopN = 0
	assert.Error(t, cfg.Validate())

	cfg.Scan.TopN = 5
	cfg.Watch.Interval = 0
	assert.Error(t, cfg.Validate())
}

func TestScanSnapshot(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	snap := cfg.ScanSnapshot()
	assert.InDelta(t, cfg.Scan.PriceMin, snap.PriceMin, 1e-9)
	assert.InDelta(t, cfg.Scan.MinRvol, snap.MinRvol, 1e-9)
	assert.Equal(t, cfg.Scan.VolumeCap, snap.VolumeCap)
	assert.Equal(t, cfg.Scan.TopN, snap.TopN)
}
