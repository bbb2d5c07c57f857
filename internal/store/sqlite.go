package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"rvol-scanner/internal/models"
)

const appConfigKey = "app_config"

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Ingestion batches
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		ingested_at DATETIME NOT NULL,
		source_hash TEXT
	);

	-- Raw scan rows, scoped to one batch
	CREATE TABLE IF NOT EXISTS scan_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		ticker TEXT NOT NULL,
		name TEXT,
		rvol REAL NOT NULL,
		price REAL NOT NULL,
		pct_change REAL,
		volume INTEGER,
		market_cap INTEGER,
		sector TEXT,
		analyst_rating TEXT,
		seen_at DATETIME NOT NULL
	);

	-- Filtered candidates, at most one live row per (ticker, trading day)
	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		reasons TEXT,
		day_key TEXT NOT NULL,
		first_seen_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL,
		notified_topn INTEGER NOT NULL DEFAULT 0,
		UNIQUE(ticker, day_key)
	);

	-- Positions
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		qty REAL NOT NULL,
		entry_price REAL NOT NULL,
		current_price REAL,
		exit_price REAL,
		notes TEXT,
		created_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	-- Price alerts
	CREATE TABLE IF NOT EXISTS price_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		kind TEXT NOT NULL,
		threshold_value REAL NOT NULL,
		trailing INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		last_triggered_at DATETIME
	);

	-- Notification records; dedupe_key uniqueness is the idempotency guarantee
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		ticker TEXT,
		message TEXT NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		sent_at DATETIME,
		status TEXT NOT NULL,
		error TEXT
	);

	-- App settings overrides
	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_rows_batch ON scan_rows(batch_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_last_seen ON candidates(last_seen_at);
	CREATE INDEX IF NOT EXISTS idx_candidates_ticker ON candidates(ticker);
	CREATE INDEX IF NOT EXISTS idx_positions_ticker ON positions(ticker);
	CREATE INDEX IF NOT EXISTS idx_alerts_ticker ON price_alerts(ticker);
	CREATE INDEX IF NOT EXISTS idx_alerts_active ON price_alerts(active);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateBatch inserts a new ingestion batch.
func (s *SQLiteStore) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.IngestedAt.IsZero() {
		batch.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, ingested_at, source_hash) VALUES (?, ?, ?)
	`, batch.ID, batch.IngestedAt, batch.SourceHash)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// GetBatch returns one batch by id.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var b models.Batch
	var sourceHash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ingested_at, source_hash FROM batches WHERE id = ?
	`, id).Scan(&b.ID, &b.IngestedAt, &sourceHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	b.SourceHash = sourceHash.String
	return &b, nil
}

// InsertScanRows bulk-inserts raw rows inside one transaction.
func (s *SQLiteStore) InsertScanRows(ctx context.Context, rows []models.ScanRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_rows (batch_id, ticker, name, rvol, price, pct_change, volume, market_cap, sector, analyst_rating, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		seenAt := r.SeenAt
		if seenAt.IsZero() {
			seenAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			r.BatchID, strings.ToUpper(r.Ticker), nullStr(r.Name), r.Rvol, r.Price,
			nullFloat(r.PctChange), nullInt(r.Volume), nullInt(r.MarketCap),
			nullStr(r.Sector), nullStr(r.AnalystRating), seenAt)
		if err != nil {
			return fmt.Errorf("failed to insert scan row %s: %w", r.Ticker, err)
		}
	}

	return tx.Commit()
}

// GetScanRows returns all raw rows for a batch.
func (s *SQLiteStore) GetScanRows(ctx context.Context, batchID string) ([]models.ScanRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, ticker, name, rvol, price, pct_change, volume, market_cap, sector, analyst_rating, seen_at
		FROM scan_rows WHERE batch_id = ? ORDER BY id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan rows: %w", err)
	}
	defer rows.Close()

	var out []models.ScanRow
	for rows.Next() {
		var r models.ScanRow
		var name, sector, rating sql.NullString
		var pct sql.NullFloat64
		var volume, marketCap sql.NullInt64
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Ticker, &name, &r.Rvol, &r.Price,
			&pct, &volume, &marketCap, &sector, &rating, &r.SeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Name = name.String
		r.Sector = sector.String
		r.AnalystRating = rating.String
		if pct.Valid {
			v := pct.Float64
			r.PctChange = &v
		}
		if volume.Valid {
			v := volume.Int64
			r.Volume = &v
		}
		if marketCap.Valid {
			v := marketCap.Int64
			r.MarketCap = &v
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// UpsertCandidates merges scored survivors into the per-day candidate set in
// one transaction. The UNIQUE(ticker, day_key) constraint plus ON CONFLICT
// keeps the merge atomic under concurrent batch processing: last_seen_at
// always advances, score and reasons are overwritten only when the new score
// is strictly higher, first_seen_at and notified_topn are untouched on
// update. Returns the stored rows.
func (s *SQLiteStore) UpsertCandidates(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		reasons, err := json.Marshal(c.Reasons)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reasons for %s: %w", c.Ticker, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO candidates (batch_id, ticker, score, reasons, day_key, first_seen_at, last_seen_at, notified_topn)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT(ticker, day_key) DO UPDATE SET
				batch_id = excluded.batch_id,
				last_seen_at = excluded.last_seen_at,
				reasons = CASE WHEN excluded.score > candidates.score THEN excluded.reasons ELSE candidates.reasons END,
				score = CASE WHEN excluded.score > candidates.score THEN excluded.score ELSE candidates.score END
		`, c.BatchID, c.Ticker, c.Score, string(reasons), c.DayKey, c.FirstSeenAt, c.LastSeenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert candidate %s: %w", c.Ticker, err)
		}

		stored, err := scanCandidate(tx.QueryRowContext(ctx, `
			SELECT id, batch_id, ticker, score, reasons, day_key, first_seen_at, last_seen_at, notified_topn
			FROM candidates WHERE ticker = ? AND day_key = ?
		`, c.Ticker, c.DayKey))
		if err != nil {
			return nil, fmt.Errorf("failed to read back candidate %s: %w", c.Ticker, err)
		}
		out = append(out, *stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit candidates: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var c models.Candidate
	var reasons sql.NullString
	var notified int
	if err := row.Scan(&c.ID, &c.BatchID, &c.Ticker, &c.Score, &reasons, &c.DayKey,
		&c.FirstSeenAt, &c.LastSeenAt, &notified); err != nil {
		return nil, err
	}
	c.NotifiedTopN = notified == 1
	if reasons.Valid && reasons.String != "" {
		if err := json.Unmarshal([]byte(reasons.String), &c.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
	}
	return &c, nil
}

// ListCandidates returns the latest candidate per ticker within the filter
// window, ordered by last-seen descending then score descending.
func (s *SQLiteStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.batch_id, c.ticker, c.score, c.reasons, c.day_key, c.first_seen_at, c.last_seen_at, c.notified_topn
		FROM candidates c
		JOIN (
			SELECT ticker, MAX(last_seen_at) AS max_last
			FROM candidates
			WHERE last_seen_at >= ? AND last_seen_at < ?
			GROUP BY ticker
		) m ON c.ticker = m.ticker AND c.last_seen_at = m.max_last
		ORDER BY c.last_seen_at DESC, c.score DESC
		LIMIT ?
	`, filter.From, filter.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, *c)
	}

	return out, rows.Err()
}

// MarkCandidateNotified sets the top-pick notified flag.
func (s *SQLiteStore) MarkCandidateNotified(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE candidates SET notified_topn = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark candidate notified: %w", err)
	}
	return nil
}

// CreatePosition inserts a new position.
func (s *SQLiteStore) CreatePosition(ctx context.Context, p *models.Position) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (ticker, side, qty, entry_price, current_price, exit_price, notes, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, strings.ToUpper(p.Ticker), string(p.Side), p.Qty, p.EntryPrice,
		nullFloat(p.CurrentPrice), nullFloat(p.ExitPrice), nullStr(p.Notes), p.CreatedAt, nullTime(p.ClosedAt))
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// GetPositions returns positions matching the filter, newest first.
func (s *SQLiteStore) GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error) {
	query := `
		SELECT id, ticker, side, qty, entry_price, current_price, exit_price, notes, created_at, closed_at
		FROM positions WHERE 1=1`
	var args []interface{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.OpenOnly {
		query += " AND closed_at IS NULL"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, *p)
	}

	return out, rows.Err()
}

// GetPositionByID returns one position, or nil when absent.
func (s *SQLiteStore) GetPositionByID(ctx context.Context, id int64) (*models.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx, `
		SELECT id, ticker, side, qty, entry_price, current_price, exit_price, notes, created_at, closed_at
		FROM positions WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var side string
	var current, exit sql.NullFloat64
	var notes sql.NullString
	var closedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Ticker, &side, &p.Qty, &p.EntryPrice,
		&current, &exit, &notes, &p.CreatedAt, &closedAt); err != nil {
		return nil, err
	}
	p.Side = models.Side(side)
	p.Notes = notes.String
	if current.Valid {
		v := current.Float64
		p.CurrentPrice = &v
	}
	if exit.Valid {
		v := exit.Float64
		p.ExitPrice = &v
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return &p, nil
}

// UpdatePosition edits the size, entry price and notes of an open position.
func (s *SQLiteStore) UpdatePosition(ctx context.Context, id int64, qty, entryPrice float64, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET qty = ?, entry_price = ?, notes = ? WHERE id = ? AND closed_at IS NULL
	`, qty, entryPrice, nullStr(notes), id)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %d not found or already closed", id)
	}
	return nil
}

// UpdatePositionPrice sets the current mark price for a position.
func (s *SQLiteStore) UpdatePositionPrice(ctx context.Context, id int64, price float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE positions SET current_price = ? WHERE id = ?`, price, id)
	if err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	return nil
}

// ClosePosition records the exit price and close timestamp.
func (s *SQLiteStore) ClosePosition(ctx context.Context, id int64, exitPrice float64, closedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET exit_price = ?, closed_at = ? WHERE id = ? AND closed_at IS NULL
	`, exitPrice, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %d not found or already closed", id)
	}
	return nil
}

// CreateAlert inserts a new price alert.
func (s *SQLiteStore) CreateAlert(ctx context.Context, a *models.PriceAlert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts (ticker, kind, threshold_value, trailing, active, created_at, last_triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, strings.ToUpper(a.Ticker), string(a.Kind), a.ThresholdValue,
		boolInt(a.Trailing), boolInt(a.Active), a.CreatedAt, nullTime(a.LastTriggeredAt))
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

// GetAlerts returns alerts matching the filter, newest first.
func (s *SQLiteStore) GetAlerts(ctx context.Context, filter AlertFilter) ([]models.PriceAlert, error) {
	query := `
		SELECT id, ticker, kind, threshold_value, trailing, active, created_at, last_triggered_at
		FROM price_alerts WHERE 1=1`
	var args []interface{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.Active != nil {
		query += " AND active = ?"
		args = append(args, boolInt(*filter.Active))
	}
	if filter.Trailing != nil {
		query += " AND trailing = ?"
		args = append(args, boolInt(*filter.Trailing))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.PriceAlert
	for rows.Next() {
		var a models.PriceAlert
		var kind string
		var trailing, active int
		var triggeredAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Ticker, &kind, &a.ThresholdValue,
			&trailing, &active, &a.CreatedAt, &triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		a.Trailing = trailing == 1
		a.Active = active == 1
		if triggeredAt.Valid {
			t := triggeredAt.Time
			a.LastTriggeredAt = &t
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// SetAlertActive activates or deactivates an alert.
func (s *SQLiteStore) SetAlertActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE price_alerts SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to set alert active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d not found", id)
	}
	return nil
}

// TouchAlertTriggered records the last trigger timestamp.
func (s *SQLiteStore) TouchAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE price_alerts SET last_triggered_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch alert: %w", err)
	}
	return nil
}

// NotificationExists reports whether a record with the dedupe key is stored.
func (s *SQLiteStore) NotificationExists(ctx context.Context, dedupeKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE dedupe_key = ?`, dedupeKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return true, nil
}

// InsertNotification persists one delivery record. A duplicate dedupe key is
// reported as an error; the sink treats it as the expected no-op path.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (channel, ticker, message, dedupe_key, sent_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(n.Channel), nullStr(n.Ticker), n.Message, n.DedupeKey, n.SentAt, string(n.Status), nullStr(n.Error))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	n.ID, _ = res.LastInsertId()
	return nil
}

// GetNotifications returns the most recent notification records.
func (s *SQLiteStore) GetNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, ticker, message, dedupe_key, sent_at, status, error
		FROM notifications ORDER BY sent_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var channel, status string
		var ticker, errText sql.NullString
		if err := rows.Scan(&n.ID, &channel, &ticker, &n.Message, &n.DedupeKey,
			&n.SentAt, &status, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Channel = models.Channel(channel)
		n.Status = models.NotifyStatus(status)
		n.Ticker = ticker.String
		n.Error = errText.String
		out = append(out, n)
	}

	return out, rows.Err()
}

// LoadSettings merges all stored setting rows into one map. Object values
// are merged key-by-key; scalar values are stored under the row key.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value_json FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]interface{})
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal setting %s: %w", key, err)
		}
		if obj, ok := value.(map[string]interface{}); ok {
			for k, v := range obj {
				out[k] = v
			}
		} else {
			out[key] = value
		}
	}

	return out, rows.Err()
}

// SaveSettings merges the updates into the app_config record and returns the
// resulting settings map.
func (s *SQLiteStore) SaveSettings(ctx context.Context, updates map[string]interface{}) (map[string]interface{}, error) {
	existing := make(map[string]interface{})

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value_json FROM app_settings WHERE key = ?`, appConfigKey).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load settings record: %w", err)
	}
	if err == nil {
		if uerr := json.Unmarshal([]byte(raw), &existing); uerr != nil {
			return nil, fmt.Errorf("failed to unmarshal settings record: %w", uerr)
		}
	}

	for k, v := range updates {
		existing[k] = v
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, appConfigKey, string(merged), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	return s.LoadSettings(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
