package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/user/gig-sync-service/internal/delivery/http/request"
	"github.com/user/gig-sync-service/internal/delivery/http/response"
	"github.com/user/gig-sync-service/internal/usecase"
	"github.com/user/gig-sync-service/pkg/logger"
	"go.uber.org/zap"
)

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	sync   usecase.SyncManager
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewHandler creates the API handler. checks are reported by name on /api/health.
func NewHandler(sync usecase.SyncManager, checks map[string]HealthCheck, l *zap.Logger) *Handler {
	return &Handler{
		sync:   sync,
		checks: checks,
		logger: logger.OrNop(l).With(zap.String("component", "http")),
	}
}

func (h *Handler) HandleStartSync(w http.ResponseWriter, r *http.Request) {
	req, err := request.ParseSyncRequest(r.URL.Query())
	if err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Wait {
		rec, err := h.sync.RunNow(r.Context(), req.Options())
		switch {
		case errors.Is(err, usecase.ErrAlreadyRunning) && req.Queue:
			// Fall through to the queued path below.
		case errors.Is(err, usecase.ErrAlreadyRunning):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, usecase.ErrShuttingDown):
			h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		case rec != nil:
			status, code := "completed", http.StatusOK
			if err != nil {
				status, code = "failed", http.StatusInternalServerError
				h.logger.Error("sync run failed", zap.String("run_id", rec.RunID), zap.Error(err))
			}
			h.writeJSON(w, code, response.SyncFinishedResponse{Status: status, Run: rec})
			return
		default:
			h.logger.Error("failed to run sync", zap.Error(err))
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	runID, err := h.sync.Start(r.Context(), req.Options(), req.Queue)
	switch {
	case errors.Is(err, usecase.ErrSyncQueued):
		h.writeJSON(w, http.StatusAccepted, response.SyncStartedResponse{
			Status:  "queued",
			Message: "A sync is already running; the request will run after it",
		})
	case errors.Is(err, usecase.ErrAlreadyRunning):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrShuttingDown):
		h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		h.logger.Error("failed to start sync", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	default:
		h.writeJSON(w, http.StatusAccepted, response.SyncStartedResponse{
			Status:  "started",
			Message: "Sync started",
			RunID:   runID,
		})
	}
}

func (h *Handler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to read sync status", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := response.HealthResponse{Status: "ok", Dependencies: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Dependencies[name] = "unhealthy"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "healthy"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
