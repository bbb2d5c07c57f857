// Package store provides data persistence implementations.
package store

import (
	"context"
	"time"

	"rvol-scanner/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Batches & raw rows
	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	InsertScanRows(ctx context.Context, rows []models.ScanRow) error
	GetScanRows(ctx context.Context, batchID string) ([]models.ScanRow, error)

	// Candidates
	UpsertCandidates(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, error)
	MarkCandidateNotified(ctx context.Context, id int64) error

	// Positions
	CreatePosition(ctx context.Context, position *models.Position) error
	GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error)
	GetPositionByID(ctx context.Context, id int64) (*models.Position, error)
	UpdatePosition(ctx context.Context, id int64, qty, entryPrice float64, notes string) error
	UpdatePositionPrice(ctx context.Context, id int64, price float64) error
	ClosePosition(ctx context.Context, id int64, exitPrice float64, closedAt time.Time) error

	// Alerts
	CreateAlert(ctx context.Context, alert *models.PriceAlert) error
	GetAlerts(ctx context.Context, filter AlertFilter) ([]models.PriceAlert, error)
	SetAlertActive(ctx context.Context, id int64, active bool) error
	TouchAlertTriggered(ctx context.Context, id int64, at time.Time) error

	// Notifications
	NotificationExists(ctx context.Context, dedupeKey string) (bool, error)
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetNotifications(ctx context.Context, limit int) ([]models.Notification, error)

	// App settings
	LoadSettings(ctx context.Context) (map[string]interface{}, error)
	SaveSettings(ctx context.Context, updates map[string]interface{}) (map[string]interface{}, error)

	// Lifecycle
	Close() error
}

// CandidateFilter selects the latest candidate per ticker inside a time
// window, ordered by last-seen then score.
type CandidateFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// PositionFilter represents filters for querying positions.
type PositionFilter struct {
	Ticker   string
	OpenOnly bool
}

// AlertFilter represents filters for querying alerts.
type AlertFilter struct {
	Ticker   string
	Kind     models.AlertKind
	Active   *bool
	Trailing *bool
}
