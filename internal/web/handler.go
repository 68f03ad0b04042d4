package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/panicsave/panicsave/internal/database"
	"github.com/panicsave/panicsave/internal/observer"
	"github.com/panicsave/panicsave/internal/reporter"
)

const (
	defaultSavesLimit = 100
	maxSavesLimit     = 1000
)

// StatusProvider exposes the running observer
type StatusProvider interface {
	Snapshot() (observer.Snapshot, bool)
	MarkClosing() bool
}

type Handler struct {
	status   StatusProvider
	repo     *database.Repository
	reporter *reporter.Reporter
	metrics  http.Handler
	logger   *zap.Logger
}

// NewHandler builds the API. repo and metrics may be nil, the matching
// routes then answer 503 or are not mounted.
func NewHandler(status StatusProvider, repo *database.Repository, metrics http.Handler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		status:  status,
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
	if repo != nil {
		h.reporter = reporter.New(repo)
	}
	return h
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/saves", h.handleSaves)
	mux.HandleFunc("/api/report", h.handleReport)
	mux.HandleFunc("/api/closing", h.handleClosing)

	mux.HandleFunc("/health", h.handleHealth)

	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.status.Snapshot()
	if !ok {
		http.Error(w, "Observer not started", http.StatusServiceUnavailable)
		return
	}

	status := map[string]interface{}{
		"observer": snap,
	}

	if h.repo != nil {
		if latest, err := h.repo.GetLatestSave(); err == nil && latest != nil {
			status["latest_save"] = latest
		}
	}

	h.respondJSON(w, status)
}

func (h *Handler) handleSaves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "Save journal disabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()

	limit := defaultSavesLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit: %s", limitStr), http.StatusBadRequest)
			return
		}
		limit = min(l, maxSavesLimit)
	}

	since := time.Now().Add(-24 * time.Hour)
	if periodType := query.Get("period"); periodType != "" {
		period, err := reporter.Period(periodType, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		since = period.Start
	}

	saves, err := h.repo.GetSavesSince(since, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch saves: %v", err), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, saves)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.reporter == nil {
		http.Error(w, "Save journal disabled", http.StatusServiceUnavailable)
		return
	}

	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}
	if _, err := reporter.Period(periodType, time.Now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.reporter.GenerateReport(periodType)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate report: %v", err), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, report)
}

func (h *Handler) handleClosing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	first := h.status.MarkClosing()
	h.logger.Info("host closing reported over HTTP", zap.Bool("first", first), zap.String("remote", r.RemoteAddr))

	h.respondJSON(w, map[string]bool{
		"host_closing": true,
		"changed":      first,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("error encoding JSON", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
