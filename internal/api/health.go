package api

import (
	"context"
	"net/http"
	"time"

	"github.com/wingleeio/chat-zeron/internal/log"
)

type healthHandler struct {
	db     Pinger
	cache  Pinger
	logger log.Logger
}

// alive answers liveness probes without touching any backend.
func (h *healthHandler) alive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready answers readiness probes by pinging Postgres and Redis.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, p := range map[string]Pinger{"postgres": h.db, "redis": h.cache} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "backend", name, "error", err)
			checks[name] = "down"
			healthy = false
			continue
		}
		checks[name] = "up"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}
