package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"auth-gateway/internal/logger"
)

const checkTimeout = 2 * time.Second

// Pinger checks one dependency (database, session store, policy engine).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves GET /api/health. A nil check is skipped, so local runs
// without Postgres or Redis still report healthy.
type Handler struct {
	checks map[string]Pinger
	log    *zap.Logger
	now    func() time.Time
}

func NewHandler(checks map[string]Pinger, log *zap.Logger) *Handler {
	return &Handler{checks: checks, log: logger.OrNop(log), now: time.Now}
}

type response struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "OK", Checks: map[string]string{}}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := h.checks[name]
		if p == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "DEGRADED"
			continue
		}
		resp.Checks[name] = "ok"
	}
	resp.Timestamp = h.now().UTC()

	status := http.StatusOK
	if resp.Status != "OK" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
