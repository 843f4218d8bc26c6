package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// handleHealth reports ok when the database and every enabled optional
// component answer. Any failure yields 503 with per-component detail.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{}
	healthy := true

	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
			return
		}
		components[name] = "ok"
	}

	if s.db != nil {
		check("database", s.db.PingContext)
	}
	if s.mqtt != nil {
		check("mqtt", s.mqtt.HealthCheck)
	}
	if s.influx != nil {
		check("influxdb", s.influx.HealthCheck)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	s.respondJSON(w, r, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
