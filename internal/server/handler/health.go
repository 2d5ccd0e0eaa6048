package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// healthTimeout bounds each dependency check.
const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks   map[string]HealthCheck
	inFlight func() int
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (postgres, redis, s3) to its probe; inFlight may be nil when no runner is
// attached.
func NewHealthHandler(checks map[string]HealthCheck, inFlight func() int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, inFlight: inFlight, logger: logger}
}

// HealthCheck reports every dependency probe. Any failure turns the response
// into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			h.logger.WarnContext(r.Context(), "handler: health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.inFlight != nil {
		body["ticks_in_flight"] = h.inFlight()
	}
	writeJSON(w, status, body)
}
