// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"github.com/dalemusser/stratalog/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger checks database connectivity. *mongo.Client implements it.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// StatsSource reports live log registry counts. *livelog.Router implements it.
type StatsSource interface {
	Stats() livelog.Stats
}

// Handler provides health check endpoints.
type Handler struct {
	db     Pinger
	router StatsSource
	logger *zap.Logger
}

// NewHandler creates a new health check Handler. router may be nil.
func NewHandler(db Pinger, router StatsSource, logger *zap.Logger) *Handler {
	return &Handler{
		db:     db,
		router: router,
		logger: logger,
	}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Livelog  *livelog.Stats    `json:"livelog,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe endpoints on the root router:
// /ready and /readyz for readiness, /livez for liveness.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// Check performs a full health check: database connectivity plus the live
// log registry counts.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Status:   "ok",
		Services: map[string]string{"livelog": "ok"},
	}

	if err := h.ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Services["mongodb"] = "unavailable"
		h.logger.Warn("health check: mongodb ping failed", zap.Error(err))
	} else {
		resp.Services["mongodb"] = "ok"
	}

	if h.router != nil {
		st := h.router.Stats()
		resp.Livelog = &st
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonutil.JSON(w, status, resp)
}

// Ready checks if the service is ready to accept requests.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	jsonutil.OK(w, map[string]string{"status": "ready"})
}

// Live checks if the process is alive. The router lives in memory, so a
// running process always has one.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"status": "alive"})
}

func (h *Handler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	return h.db.Ping(ctx, readpref.Primary())
}
