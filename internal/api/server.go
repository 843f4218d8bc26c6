package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/dcsense-core/internal/audit"
	"github.com/nerrad567/dcsense-core/internal/auth"
	"github.com/nerrad567/dcsense-core/internal/facility"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/config"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/dcsense-core/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ReadingSubmitter ingests one reading batch.
type ReadingSubmitter interface {
	Submit(ctx context.Context, batch []ingest.RawReading) (ingest.Result, error)
}

// ReadingQuerier answers production-tier queries.
type ReadingQuerier interface {
	ListControllers(ctx context.Context) ([]int64, error)
	ListDates(ctx context.Context, controllerID int64, limit int) ([]time.Time, error)
	ReadingsAt(ctx context.Context, controllerID int64, at time.Time) ([]ingest.Reading, error)
}

// HealthChecker is implemented by the optional broker and time-series clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	DB         *sql.DB
	Auth       *auth.Authenticator
	Authorizer *auth.Authorizer
	Facilities facility.Repository
	Ingest     ReadingSubmitter
	Readings   ReadingQuerier
	AuditRepo  audit.Repository

	// Optional components reported by /health when set.
	MQTT     HealthChecker
	InfluxDB HealthChecker

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	db         *sql.DB
	auth       *auth.Authenticator
	authz      *auth.Authorizer
	facilities facility.Repository
	ingest     ReadingSubmitter
	readings   ReadingQuerier
	auditRepo  audit.Repository
	audit      *audit.Recorder
	mqtt       HealthChecker
	influx     HealthChecker
	limiter    *ipRateLimiter
	version    string

	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Auth == nil:
		return nil, errors.New("authenticator is required")
	case deps.Authorizer == nil:
		return nil, errors.New("authorizer is required")
	case deps.Facilities == nil:
		return nil, errors.New("facility repository is required")
	case deps.Ingest == nil || deps.Readings == nil:
		return nil, errors.New("ingest pipeline and reading store are required")
	}

	s := &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		db:         deps.DB,
		auth:       deps.Auth,
		authz:      deps.Authorizer,
		facilities: deps.Facilities,
		ingest:     deps.Ingest,
		readings:   deps.Readings,
		auditRepo:  deps.AuditRepo,
		mqtt:       deps.MQTT,
		influx:     deps.InfluxDB,
		version:    deps.Version,
	}
	if deps.AuditRepo != nil {
		s.audit = audit.NewRecorder(deps.AuditRepo, deps.Logger.Logger)
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(deps.Security.RateLimit)
	}
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiterCleanupLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

func (s *Server) limiterCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}
