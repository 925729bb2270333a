package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is a storage dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerState reports whether the ledger needs manual reconciliation.
type LedgerState interface {
	Corrupted() bool
}

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
type HealthHandler struct {
	db     Pinger
	redis  redis.Cmdable
	ledger LedgerState
}

// NewHealthHandler accepts nil for dependencies the process runs without.
func NewHealthHandler(db Pinger, redis redis.Cmdable, ledger LedgerState) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, ledger: ledger}
}

// Live always reports OK – if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks storage dependencies and the ledger itself.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/database-unavailable", "database unavailable")
			return
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/redis-unavailable", "redis unavailable")
			return
		}
	}

	if h.ledger != nil && h.ledger.Corrupted() {
		RespondError(w, r, http.StatusServiceUnavailable, "ledger/corrupted", "ledger requires manual reconciliation")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
