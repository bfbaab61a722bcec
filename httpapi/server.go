// Package httpapi serves the embedded dashboard and the JSON endpoints
// used to inspect the running silo monitor: current readings, history,
// global stats, and a manual Telegram test trigger.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"silomonitor/alert"
	"silomonitor/persistence"
	"silomonitor/state"
)

//go:embed dashboard.html
var dashboardHTML embed.FS

// stateReader is the State Store dependency.
type stateReader interface {
	Snapshot() map[int]state.Status
	History(slave int, points int) ([]state.Sample, bool)
	Stats() state.Counters
	Order() []int
}

// historyReader optionally backs /api/history and /api/database with
// persisted records instead of the in-memory ring.
type historyReader interface {
	QueryRecent(ctx context.Context, externalCode string, hours, limit int) ([]persistence.Record, error)
}

// defaultHistoryHours is the time window applied to /api/history and
// /api/database when the caller does not specify one, matching the
// original's 24h default.
const defaultHistoryHours = 24

// alertTester backs the manual /api/test_telegram trigger.
type alertTester interface {
	Test() error
}

// Server serves the embedded dashboard and JSON API.
type Server struct {
	store          stateReader
	persistence    historyReader
	persistenceOn  bool
	alerts         alertTester
	alertsOn       bool
	externalCode   func(int) string
	logger         *slog.Logger

	httpServer *http.Server
}

// New builds a Server. persistenceOn/alertsOn reflect whether the
// corresponding subsystem is enabled in configuration, independent of
// whether a live collaborator was wired in (so tests can pass nil).
func New(store stateReader, persistenceStore historyReader, persistenceOn bool, alerts alertTester, alertsOn bool, externalCode func(int) string, logger *slog.Logger) *Server {
	return &Server{
		store:         store,
		persistence:   persistenceStore,
		persistenceOn: persistenceOn,
		alerts:        alerts,
		alertsOn:      alertsOn,
		externalCode:  externalCode,
		logger:        logger,
	}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/api/data", s.handleData)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/history/", s.handleHistory)
	mux.HandleFunc("/api/database", s.handleDatabase)
	mux.HandleFunc("/api/test_telegram", s.handleTestTelegram)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins serving on addr in the background.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := dashboardHTML.ReadFile("dashboard.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(data)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Stats())
}

// handleHistory serves /api/history/<slave>?points=N&hours=H. It reads
// from the persisted table, filtered to the last hours hours, when
// persistence is enabled, otherwise from the in-memory ring.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	slaveStr := r.URL.Path[len("/api/history/"):]
	slave, err := strconv.Atoi(slaveStr)
	if err != nil {
		http.Error(w, "invalid slave address", http.StatusBadRequest)
		return
	}

	points := 100
	if p := r.URL.Query().Get("points"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			points = v
		}
	}
	hours := parseHours(r)

	if s.persistenceOn && s.persistence != nil {
		records, err := s.persistence.QueryRecent(r.Context(), s.externalCode(slave), hours, points)
		if err != nil {
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
		return
	}

	samples, ok := s.store.History(slave, points)
	if !ok {
		http.Error(w, "unknown slave address", http.StatusBadRequest)
		return
	}
	writeJSON(w, samples)
}

// handleDatabase serves /api/database?slave_id=<N>&hours=H, returning 400
// when persistence is disabled. hours defaults to the last 24h.
func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request) {
	if !s.persistenceOn || s.persistence == nil {
		http.Error(w, "persistence is disabled", http.StatusBadRequest)
		return
	}

	slaveStr := r.URL.Query().Get("slave_id")
	slave, err := strconv.Atoi(slaveStr)
	if err != nil {
		http.Error(w, "invalid slave_id", http.StatusBadRequest)
		return
	}

	records, err := s.persistence.QueryRecent(r.Context(), s.externalCode(slave), parseHours(r), 100)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// parseHours reads the hours query parameter, defaulting to
// defaultHistoryHours when absent or not a positive integer.
func parseHours(r *http.Request) int {
	if h := r.URL.Query().Get("hours"); h != "" {
		if v, err := strconv.Atoi(h); err == nil && v > 0 {
			return v
		}
	}
	return defaultHistoryHours
}

// handleTestTelegram serves /api/test_telegram, returning 400 when alerts
// are disabled or no transport is configured.
func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if !s.alertsOn || s.alerts == nil {
		http.Error(w, "alerts are disabled", http.StatusBadRequest)
		return
	}
	if err := s.alerts.Test(); err != nil {
		if errors.Is(err, alert.ErrNoTransport) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("test alert failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "sent"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	writeJSON(w, map[string]any{
		"status":        "ok",
		"online_slaves": stats.OnlineSlaves,
		"total_slaves":  len(s.store.Order()),
		"uptime":        stats.UptimeSeconds,
		"database":      s.persistenceOn,
		"alerts":        s.alertsOn,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
