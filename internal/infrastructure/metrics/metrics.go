// Package metrics holds the Prometheus collectors exported by dcsense-core.
//
// All collectors are registered against the default registry and served at
// GET /metrics by the API server. HTTP metrics are labelled with the chi route
// pattern (e.g. /api/sensors/readings/{controller}/{time}) rather than the raw
// URL so controller IDs and timestamps do not blow up label cardinality.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reading tiers used as the "tier" label.
const (
	TierResearch   = "research"
	TierProduction = "production"
)

// HTTP request metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route pattern and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcsense_http_request_duration_seconds",
			Help:    "HTTP request latencies, by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Ingestion metrics.
//
// SubmissionsTotal counts accepted batches by transport (http, mqtt).
// PromotionsTotal counts batches promoted to the production tier; the ratio
// rate(promotions)/rate(submissions) should sit near 1/(threshold+1).
var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_ingest_submissions_total",
			Help: "Total number of reading batches accepted, by transport.",
		},
		[]string{"transport"},
	)

	RejectedSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_ingest_rejected_submissions_total",
			Help: "Total number of reading batches rejected before storage, by reason.",
		},
		[]string{"reason"},
	)

	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dcsense_ingest_promotions_total",
			Help: "Total number of batches promoted to the production tier.",
		},
	)

	ReadingsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_readings_written_total",
			Help: "Total number of individual readings written, by tier.",
		},
		[]string{"tier"},
	)
)

// Authentication metrics.
var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_login_attempts_total",
			Help: "Total number of login attempts, by result (success, invalid, error, rate_limited).",
		},
		[]string{"result"},
	)

	SessionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcsense_session_rejections_total",
			Help: "Total number of requests refused by the session or ownership guards, by reason.",
		},
		[]string{"reason"},
	)
)

// DBOpenConnections tracks sql.DB pool usage, sampled by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "dcsense_db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartDBStatsCollector samples pool statistics every interval until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					if ctx.Err() == nil {
						logger.Warn("db stats collector stopping, database unreachable", "error", err)
					}
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
