// dcsense-core is the facility sensor monitoring backend.
//
// It accepts temperature reading batches from field controllers over HTTP
// (and optionally MQTT), keeps every batch in the research tier, promotes
// one batch in every threshold+1 to the production tier, and serves
// account, facility and reading queries behind ticket sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/dcsense-core/internal/api"
	"github.com/nerrad567/dcsense-core/internal/audit"
	"github.com/nerrad567/dcsense-core/internal/auth"
	"github.com/nerrad567/dcsense-core/internal/facility"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/config"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/database"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dcsense-core/internal/ingest"
	"github.com/nerrad567/dcsense-core/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "DCSENSE_CONFIG"

	dbStatsInterval = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	migrateOnly bool
	migrateDown bool
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("dcsense", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file (env "+configEnvVar+")")
	flagSet.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	flagSet.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the most recent migration and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// run is the application body, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("dcsense-core %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting dcsense-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if opts.migrateDown {
		if downErr := db.MigrateDown(ctx, migrations.FS); downErr != nil {
			return fmt.Errorf("rolling back migration: %w", downErr)
		}
		log.Info("latest migration rolled back")
		return nil
	}

	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete",
		"previously_applied", len(applied),
		"applied_now", len(pending),
	)

	if opts.migrateOnly {
		return nil
	}

	authLog := log.With("component", "auth")
	ingestLog := log.With("component", "ingest")

	// Accounts and sessions
	hasher, err := auth.NewCredentialHasher(cfg.Security.Credentials.Key, cfg.Security.Credentials.Scheme)
	if err != nil {
		return fmt.Errorf("creating credential hasher: %w", err)
	}
	authenticator := auth.NewAuthenticator(
		auth.NewUserRepository(db.DB),
		auth.NewTicketRepository(db.DB),
		hasher,
		authLog.Logger,
		auth.WithSessionTTL(cfg.SessionTTL()),
	)
	if _, seedErr := auth.SeedAdmin(ctx, authenticator,
		cfg.Security.BootstrapAdmin.Username,
		cfg.Security.BootstrapAdmin.Password,
		authLog.Logger,
	); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}
	go authenticator.RunTicketCleanup(ctx, cfg.TicketCleanupInterval())

	facilities := facility.NewSQLiteRepository(db.DB)
	authorizer := auth.NewAuthorizer(facilities)

	// Production tier: SQLite is authoritative, InfluxDB mirrors it when enabled.
	productionStore := ingest.NewProductionStore(db.DB)
	production := ingest.MultiSink{productionStore}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		production = append(production, ingest.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, readings accepted over HTTP only")
	}

	pipelineOpts := []ingest.Option{ingest.WithThreshold(cfg.Ingest.Threshold)}
	if mqttClient != nil {
		pipelineOpts = append(pipelineOpts,
			ingest.WithPromotionNotifier(ingest.NewPromotionPublisher(mqttClient, ingestLog.Logger)))
	}
	pipeline := ingest.NewPipeline(
		ingest.NewCounterStore(db.DB),
		ingest.NewResearchStore(db.DB),
		production,
		ingestLog.Logger,
		pipelineOpts...,
	)

	if mqttClient != nil {
		subscriber := ingest.NewSubscriber(mqttClient, pipeline, cfg.Ingest.MQTTTopic, byte(cfg.MQTT.QoS), ingestLog.Logger) //nolint:gosec // qos validated by config
		if startErr := subscriber.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT subscriber: %w", startErr)
		}
		defer func() {
			if stopErr := subscriber.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT subscriber", "error", stopErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	metrics.StartDBStatsCollector(ctx, db.DB, dbStatsInterval, log.Logger)

	deps := api.Deps{
		Config:     cfg.API,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		DB:         db.DB,
		Auth:       authenticator,
		Authorizer: authorizer,
		Facilities: facilities,
		Ingest:     pipeline,
		Readings:   productionStore,
		AuditRepo:  audit.NewSQLiteRepository(db.DB),
		Version:    version,
	}
	// Assigned only when non-nil so a disabled component does not become
	// a non-nil interface holding a nil pointer.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"threshold", pipeline.Threshold(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns DCSENSE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every connection opened during startup.
// mqttClient and influxClient are nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
