package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/utils"
)

// readinessTimeout bounds the key set load attempted by a readiness probe
const readinessTimeout = 5 * time.Second

// KeySetStatus exposes the state of the signing key cache
type KeySetStatus interface {
	Snapshot() *cognito.KeySet
	Refresh(ctx context.Context) (*cognito.KeySet, error)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	keys   KeySetStatus
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(keys KeySetStatus, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// The service is ready once a key set is cached; a cold cache is loaded on demand.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	set := h.keys.Snapshot()
	if set == nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		loaded, err := h.keys.Refresh(ctx)
		if err != nil {
			h.logger.Warn("jwks readiness check failed", zap.Error(err))
			checks["jwks"] = cognito.ErrorKind(err)
		}
		set = loaded
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if set == nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["jwks"] = "loaded"
		checks["jwks_keys"] = strconv.Itoa(set.Len())
		checks["jwks_age"] = h.now().Sub(set.FetchedAt).Truncate(time.Second).String()
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// KeySetResponse describes the cached signing keys
type KeySetResponse struct {
	Source    string   `json:"source"`
	FetchedAt string   `json:"fetched_at"`
	KeyIDs    []string `json:"kids"`
}

// HandleKeySet handles GET /api/v1/admin/jwks
func (h *HealthHandler) HandleKeySet(w http.ResponseWriter, r *http.Request) {
	set := h.keys.Snapshot()
	if set == nil {
		_ = utils.WriteNotFound(w, "no key set loaded yet")
		return
	}
	_ = utils.WriteOK(w, KeySetResponse{
		Source:    set.Source,
		FetchedAt: set.FetchedAt.UTC().Format(time.RFC3339),
		KeyIDs:    set.KeyIDs(),
	})
}
