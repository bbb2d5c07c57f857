// Package models provides domain models for the scanner application.
package models

import "time"

// Side represents the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// AlertKind represents the trigger rule of a price alert.
type AlertKind string

const (
	AlertTargetPct AlertKind = "target_pct"
	AlertTargetAbs AlertKind = "target_abs"
	AlertStop      AlertKind = "stop"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelGmail    Channel = "gmail"
	ChannelDesktop  Channel = "desktop"
)

// NotifyStatus represents the outcome of a notification attempt.
type NotifyStatus string

const (
	NotifySent  NotifyStatus = "sent"
	NotifyError NotifyStatus = "error"
)

// Batch represents one ingestion event of raw scan rows.
type Batch struct {
	ID         string
	IngestedAt time.Time
	SourceHash string
}

// ScanRow is a single raw market-scan row belonging to a batch.
// Optional upstream fields are pointers; they are frequently absent.
type ScanRow struct {
	ID            int64
	BatchID       string
	Ticker        string
	Name          string
	Rvol          float64
	Price         float64
	PctChange     *float64
	Volume        *int64
	MarketCap     *int64
	Sector        string
	AnalystRating string
	SeenAt        time.Time
}

// VolumeOrZero returns the row volume, treating missing volume as zero.
func (r ScanRow) VolumeOrZero() int64 {
	if r.Volume == nil {
		return 0
	}
	return *r.Volume
}

// Reasons captures the row values and rule thresholds that admitted a
// candidate, stored alongside the score for later inspection.
type Reasons struct {
	Price     float64 `json:"price"`
	Rvol      float64 `json:"rvol"`
	PctChange float64 `json:"pct_change"`
	Volume    int64   `json:"volume"`
	Rules     RuleSet `json:"rules"`
}

// RuleSet records the thresholds that were in force when a row was admitted.
type RuleSet struct {
	PriceRange   [2]float64 `json:"price_range"`
	MinRvol      float64    `json:"min_rvol"`
	MinPctChange float64    `json:"min_pct_change"`
	VolumeCap    int64      `json:"volume_cap"`
}

// Candidate is a filtered, scored scan row deduplicated per trading day.
// At most one live row exists per (ticker, day); repeated sightings update
// LastSeenAt and, only on a strictly higher score, Score and Reasons.
type Candidate struct {
	ID           int64
	BatchID      string
	Ticker       string
	Score        float64
	Reasons      Reasons
	DayKey       string // trading day in the reference zone, YYYY-MM-DD
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	NotifiedTopN bool
}

// Position represents a held instrument. The watch loop only ever mutates
// CurrentPrice; opening and closing are owned by the API/CLI surface.
type Position struct {
	ID           int64
	Ticker       string
	Side         Side
	Qty          float64
	EntryPrice   float64
	CurrentPrice *float64
	ExitPrice    *float64
	Notes        string
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// Open reports whether the position has not been closed.
func (p Position) Open() bool { return p.ClosedAt == nil }

// PriceAlert represents a trigger condition watched against live prices.
//
// Trailing is stored and exposed through the API but is not consulted by
// trigger evaluation; trailing-stop semantics are not implemented.
type PriceAlert struct {
	ID              int64
	Ticker          string
	Kind            AlertKind
	ThresholdValue  float64
	Trailing        bool
	Active          bool
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
}

// Notification is a persisted record of one delivery attempt. DedupeKey is
// globally unique; a second attempt with the same key is a silent no-op.
type Notification struct {
	ID        int64
	Channel   Channel
	Ticker    string
	Message   string
	DedupeKey string
	SentAt    time.Time
	Status    NotifyStatus
	Error     string
}

// Quote is a current price snapshot for one ticker.
type Quote struct {
	Ticker        string
	Current       float64
	Change        float64
	ChangePercent float64
	High          float64
	Low           float64
	Open          float64
	PrevClose     float64
	Timestamp     time.Time
}

// ScanConfig is a point-in-time snapshot of the admission thresholds.
// Values may change between batches but are fixed within one invocation.
type ScanConfig struct {
	PriceMin     float64 `json:"price_min"`
	PriceMax     float64 `json:"price_max"`
	MinRvol      float64 `json:"min_rvol"`
	MinPctChange float64 `json:"min_pct_change"`
	VolumeCap    int64   `json:"volume_cap"`
	TopN         int     `json:"topN"`
}

// PortfolioPoint is one sample on the equity curve.
type PortfolioPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label"`
	Realized   float64   `json:"realized"`
	Unrealized float64   `json:"unrealized"`
	Equity     float64   `json:"equity"`
}

// PortfolioSummary aggregates PnL across all positions.
type PortfolioSummary struct {
	StartingCapital float64          `json:"starting_capital"`
	CurrentCapital  float64          `json:"current_capital"`
	RealizedPnL     float64          `json:"realized_pnl"`
	UnrealizedPnL   float64          `json:"unrealized_pnl"`
	EquitySeries    []PortfolioPoint `json:"equity_series"`
}
