// Package server exposes the REST and websocket surface over shared
// storage. Handlers are thin shuttles: the filter/score engine and the
// watch loop own all interesting behavior.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/notify"
	"rvol-scanner/internal/portfolio"
	"rvol-scanner/internal/scan"
	"rvol-scanner/internal/store"
	"rvol-scanner/internal/watch"
)

// Server handles HTTP requests and websocket broadcasts.
type Server struct {
	store        store.DataStore
	engine       *scan.Engine
	sink         *notify.Sink
	scanDefaults models.ScanConfig
	startCapital float64
	hub          *hub
	logger       zerolog.Logger
	mux          *http.ServeMux
}

// New creates a server and starts its websocket hub.
func New(dataStore store.DataStore, engine *scan.Engine, sink *notify.Sink, scanDefaults models.ScanConfig, startCapital float64, logger zerolog.Logger) *Server {
	s := &Server{
		store:        dataStore,
		engine:       engine,
		sink:         sink,
		scanDefaults: scanDefaults,
		startCapital: startCapital,
		hub:          newHub(logger),
		logger:       logger,
		mux:          http.NewServeMux(),
	}
	s.routes()
	go s.hub.run()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.mux }

// BroadcastTrigger publishes a fired alert to websocket clients. Wired as
// the watch loop's OnTrigger hook.
func (s *Server) BroadcastTrigger(ev watch.TriggerEvent) {
	s.hub.broadcast <- marshalWS("alert", map[string]interface{}{
		"alert_id": ev.Alert.ID,
		"ticker":   ev.Alert.Ticker,
		"kind":     ev.Alert.Kind,
		"price":    ev.Price,
		"pnl_abs":  ev.PnL.Abs,
		"pnl_pct":  ev.PnL.Pct,
	})
}

func (s *Server) broadcastTopPick(c models.Candidate) {
	s.hub.broadcast <- marshalWS("toppick", map[string]interface{}{
		"ticker": c.Ticker,
		"score":  c.Score,
		"price":  c.Reasons.Price,
		"rvol":   c.Reasons.Rvol,
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ws", s.hub.serveWS)
	s.mux.HandleFunc("GET /api/health", s.apiHealth)

	s.mux.HandleFunc("POST /internal/ingest-rvol-batch", s.apiIngestBatch)
	s.mux.HandleFunc("POST /internal/test-telegram", s.apiTestTelegram)

	s.mux.HandleFunc("GET /api/candidates", s.apiListCandidates)

	s.mux.HandleFunc("GET /api/positions", s.apiListPositions)
	s.mux.HandleFunc("POST /api/positions", s.apiCreatePosition)
	s.mux.HandleFunc("PATCH /api/positions/{id}", s.apiUpdatePosition)
	s.mux.HandleFunc("POST /api/positions/{id}/close", s.apiClosePosition)

	s.mux.HandleFunc("GET /api/alerts", s.apiListAlerts)
	s.mux.HandleFunc("POST /api/alerts", s.apiCreateAlert)
	s.mux.HandleFunc("POST /api/alerts/{id}/activate", s.apiSetAlertActive(true))
	s.mux.HandleFunc("POST /api/alerts/{id}/deactivate", s.apiSetAlertActive(false))

	s.mux.HandleFunc("GET /api/settings", s.apiGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.apiPutSettings)

	s.mux.HandleFunc("GET /api/portfolio/summary", s.apiPortfolioSummary)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"detail": msg})
}

func (s *Server) apiHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestItem is one raw row in an ingestion payload.
type ingestItem struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name"`
	Rvol          float64  `json:"rvol"`
	Price         float64  `json:"price"`
	PctChange     *float64 `json:"pct_change"`
	Volume        *int64   `json:"volume"`
	MarketCap     *int64   `json:"market_cap"`
	Sector        string   `json:"sector"`
	AnalystRating string   `json:"analyst_rating"`
}

type ingestPayload struct {
	BatchID string       `json:"batch_id"`
	Items   []ingestItem `json:"items"`
}

func (s *Server) apiIngestBatch(w http.ResponseWriter, r *http.Request) {
	var payload ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.BatchID == "" {
		s.writeError(w, http.StatusBadRequest, "batch_id required")
		return
	}
	if _, err := uuid.Parse(payload.BatchID); err != nil {
		s.writeError(w, http.StatusBadRequest, "batch_id must be a UUID")
		return
	}

	ctx := r.Context()
	if existing, err := s.store.GetBatch(ctx, payload.BatchID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if existing != nil {
		s.writeError(w, http.StatusConflict, "batch already ingested")
		return
	}

	batch := &models.Batch{ID: payload.BatchID, IngestedAt: time.Now().UTC()}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]models.ScanRow, 0, len(payload.Items))
	for _, it := range payload.Items {
		rows = append(rows, models.ScanRow{
			BatchID:       payload.BatchID,
			Ticker:        it.Ticker,
			Name:          it.Name,
			Rvol:          it.Rvol,
			Price:         it.Price,
			PctChange:     it.PctChange,
			Volume:        it.Volume,
			MarketCap:     it.MarketCap,
			Sector:        it.Sector,
			AnalystRating: it.AnalystRating,
		})
	}
	if err := s.store.InsertScanRows(ctx, rows); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	overrides, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg := scan.EffectiveConfig(s.scanDefaults, overrides)

	// Filtering runs synchronously inside the ingestion request.
	kept, err := s.engine.ProcessBatch(ctx, payload.BatchID, cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, c := range kept {
		s.broadcastTopPick(c)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "batch_id": payload.BatchID})
}

func (s *Server) apiTestTelegram(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	// Body is optional.
	_ = json.NewDecoder(r.Body).Decode(&payload)

	message := payload.Message
	if message == "" {
		message = fmt.Sprintf("Test notification sent at %s", time.Now().UTC().Format(time.RFC3339))
	}

	err := s.sink.Send(r.Context(), notify.Message{
		Channel:   models.ChannelTelegram,
		Text:      message,
		DedupeKey: fmt.Sprintf("test-%s", uuid.NewString()),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "message": message})
}

// candidateDTO is the listing shape consumed by the dashboard.
type candidateDTO struct {
	Ticker  string         `json:"ticker"`
	Price   float64        `json:"price"`
	Rvol    float64        `json:"rvol"`
	Score   float64        `json:"score"`
	Reasons models.RuleSet `json:"reasons"`
}

func (s *Server) apiListCandidates(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	loc := scan.MarketLocation()
	at := time.Now()
	if day := r.URL.Query().Get("day"); day != "" {
		parsed, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		at = parsed.Add(12 * time.Hour)
	}

	from, to, err := scan.SessionWindow(at, loc, "09:30", "16:00")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	candidates, err := s.store.ListCandidates(r.Context(), store.CandidateFilter{From: from, To: to, Limit: limit})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]candidateDTO, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateDTO{
			Ticker:  c.Ticker,
			Price:   c.Reasons.Price,
			Rvol:    c.Reasons.Rvol,
			Score:   c.Score,
			Reasons: c.Reasons.Rules,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type positionDTO struct {
	ID           int64      `json:"id"`
	Ticker       string     `json:"ticker"`
	Side         string     `json:"side"`
	Qty          float64    `json:"qty"`
	EntryPrice   float64    `json:"entry_price"`
	CurrentPrice *float64   `json:"current_price,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

func positionToDTO(p models.Position) positionDTO {
	return positionDTO{
		ID:           p.ID,
		Ticker:       p.Ticker,
		Side:         string(p.Side),
		Qty:          p.Qty,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: p.CurrentPrice,
		ExitPrice:    p.ExitPrice,
		Notes:        p.Notes,
		CreatedAt:    p.CreatedAt,
		ClosedAt:     p.ClosedAt,
	}
}

func (s *Server) apiListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.GetPositions(r.Context(), store.PositionFilter{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]positionDTO, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionToDTO(p))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiCreatePosition(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Ticker     string  `json:"ticker"`
		Side       string  `json:"side"`
		Qty        float64 `json:"qty"`
		EntryPrice float64 `json:"entry_price"`
		Notes      string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Ticker == "" || payload.Qty <= 0 {
		s.writeError(w, http.StatusBadRequest, "ticker and positive qty required")
		return
	}
	side := models.Side(payload.Side)
	if side != models.SideLong && side != models.SideShort {
		s.writeError(w, http.StatusBadRequest, "side must be long or short")
		return
	}

	p := &models.Position{
		Ticker:     payload.Ticker,
		Side:       side,
		Qty:        payload.Qty,
		EntryPrice: payload.EntryPrice,
		Notes:      payload.Notes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreatePosition(r.Context(), p); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, positionToDTO(*p))
}

func (s *Server) apiUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	existing, err := s.store.GetPositionByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "position not found")
		return
	}

	var payload struct {
		Qty        *float64 `json:"qty"`
		EntryPrice *float64 `json:"entry_price"`
		Notes      *string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	qty := existing.Qty
	if payload.Qty != nil {
		if *payload.Qty <= 0 {
			s.writeError(w, http.StatusBadRequest, "qty must be positive")
			return
		}
		qty = *payload.Qty
	}
	entry := existing.EntryPrice
	if payload.EntryPrice != nil {
		entry = *payload.EntryPrice
	}
	notes := existing.Notes
	if payload.Notes != nil {
		notes = *payload.Notes
	}

	if err := s.store.UpdatePosition(r.Context(), id, qty, entry, notes); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	updated, err := s.store.GetPositionByID(r.Context(), id)
	if err != nil || updated == nil {
		s.writeError(w, http.StatusInternalServerError, "position reload failed")
		return
	}
	s.writeJSON(w, http.StatusOK, positionToDTO(*updated))
}

func (s *Server) apiClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	var payload struct {
		ExitPrice float64 `json:"exit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.store.ClosePosition(r.Context(), id, payload.ExitPrice, time.Now().UTC()); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	p, err := s.store.GetPositionByID(r.Context(), id)
	if err != nil || p == nil {
		s.writeError(w, http.StatusInternalServerError, "position reload failed")
		return
	}
	s.writeJSON(w, http.StatusOK, positionToDTO(*p))
}

type alertDTO struct {
	ID              int64      `json:"id"`
	Ticker          string     `json:"ticker"`
	Kind            string     `json:"kind"`
	ThresholdValue  float64    `json:"threshold_value"`
	Trailing        bool       `json:"trailing"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

func alertToDTO(a models.PriceAlert) alertDTO {
	return alertDTO{
		ID:              a.ID,
		Ticker:          a.Ticker,
		Kind:            string(a.Kind),
		ThresholdValue:  a.ThresholdValue,
		Trailing:        a.Trailing,
		Active:          a.Active,
		CreatedAt:       a.CreatedAt,
		LastTriggeredAt: a.LastTriggeredAt,
	}
}

func (s *Server) apiListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := store.AlertFilter{
		Ticker: r.URL.Query().Get("ticker"),
		Kind:   models.AlertKind(r.URL.Query().Get("kind")),
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active := v == "true" || v == "1"
		filter.Active = &active
	}
	if v := r.URL.Query().Get("trailing"); v != "" {
		trailing := v == "true" || v == "1"
		filter.Trailing = &trailing
	}

	alerts, err := s.store.GetAlerts(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertToDTO(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiCreateAlert(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Ticker         string  `json:"ticker"`
		Kind           string  `json:"kind"`
		ThresholdValue float64 `json:"threshold_value"`
		Trailing       bool    `json:"trailing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	kind := models.AlertKind(payload.Kind)
	if kind != models.AlertTargetPct && kind != models.AlertTargetAbs && kind != models.AlertStop {
		s.writeError(w, http.StatusBadRequest, "kind must be target_pct, target_abs or stop")
		return
	}
	if payload.Ticker == "" {
		s.writeError(w, http.StatusBadRequest, "ticker required")
		return
	}

	a := &models.PriceAlert{
		Ticker:         payload.Ticker,
		Kind:           kind,
		ThresholdValue: payload.ThresholdValue,
		Trailing:       payload.Trailing,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateAlert(r.Context(), a); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, alertToDTO(*a))
}

func (s *Server) apiSetAlertActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid alert id")
			return
		}
		if err := s.store.SetAlertActive(r.Context(), id, active); err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": active})
	}
}

func (s *Server) apiGetSettings(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.store.LoadSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg := scan.EffectiveConfig(s.scanDefaults, overrides)
	merged := map[string]interface{}{
		"price_min":        cfg.PriceMin,
		"price_max":        cfg.PriceMax,
		"min_rvol":         cfg.MinRvol,
		"min_pct_change":   cfg.MinPctChange,
		"volume_cap":       cfg.VolumeCap,
		"topN":             cfg.TopN,
		"starting_capital": s.effectiveCapital(overrides),
	}
	for k, v := range overrides {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) apiPutSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	merged, err := s.store.SaveSettings(r.Context(), updates)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) effectiveCapital(overrides map[string]interface{}) float64 {
	if v, ok := overrides["starting_capital"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return s.startCapital
}

func (s *Server) apiPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.GetPositions(r.Context(), store.PositionFilter{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	overrides, err := s.store.LoadSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary := portfolio.Summarize(positions, s.effectiveCapital(overrides), time.Now().UTC())
	s.writeJSON(w, http.StatusOK, summary)
}
