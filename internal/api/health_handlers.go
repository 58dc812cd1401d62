package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avesia/backend/internal/vision"
)

type HealthHandler struct {
	DB     *sql.DB
	Redis  *redis.Client
	Vision *vision.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client, client *vision.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb, Vision: client}
}

// GET /healthz - liveness only, for load balancers.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GET /api/v1/health - readiness with per-dependency status. Degraded
// dependencies report but do not fail the endpoint; only a dead database
// makes the service not ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{
		"database": "ok",
		"redis":    "ok",
		"vision":   "ok",
	}
	httpStatus := http.StatusOK

	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			status["database"] = "down"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
		}
	}
	if h.Vision != nil {
		if err := h.Vision.Health(ctx); err != nil {
			status["vision"] = "down"
		}
	}

	respondJSON(w, httpStatus, map[string]any{"status": status})
}
