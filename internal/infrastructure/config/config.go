package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential digest schemes accepted by security.credentials.scheme.
const (
	SchemeHMACSHA256 = "hmac-sha256"
	SchemeArgon2id   = "argon2id"
)

// Config is the root configuration structure for dcsense-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; when disabled readings arrive over HTTP only.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains settings for the optional production-tier mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains authentication and abuse-protection settings.
type SecurityConfig struct {
	Credentials    CredentialsConfig    `yaml:"credentials"`
	Session        SessionConfig        `yaml:"session"`
	Registration   RegistrationConfig   `yaml:"registration"`
	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// CredentialsConfig controls how stored credential digests are computed.
type CredentialsConfig struct {
	// Key is the per-deployment secret mixed into every digest.
	Key string `yaml:"key"`

	// Scheme is applied to new registrations. Existing users keep the
	// scheme recorded on their row.
	Scheme string `yaml:"scheme"`
}

// SessionConfig contains session ticket settings.
type SessionConfig struct {
	TTLHours        int `yaml:"ttl_hours"`
	CleanupInterval int `yaml:"cleanup_interval"` // minutes
}

// RegistrationConfig restricts self-service registration.
type RegistrationConfig struct {
	// MaxPublicLevel is the highest access level that may be registered
	// without presenting an admin ticket.
	MaxPublicLevel int `yaml:"max_public_level"`
}

// BootstrapAdminConfig describes the admin account created on first start.
type BootstrapAdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RateLimitConfig contains rate limiting settings for the credential endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// IngestConfig contains reading ingestion settings.
type IngestConfig struct {
	// Threshold is the number of submissions between promotions.
	Threshold int `yaml:"threshold"`

	// MQTTTopic is the subscription filter for broker-delivered readings.
	// It must contain a single-level wildcard in the controller position.
	MQTTTopic string `yaml:"mqtt_topic"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DCSENSE_SECTION_KEY
// For example: DCSENSE_DATABASE_PATH, DCSENSE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dcsense",
			Name: "dcsense",
		},
		Database: DatabaseConfig{
			Path:        "./data/dcsense.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dcsense-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "dcsense",
			Bucket:        "production",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			Credentials: CredentialsConfig{
				Scheme: SchemeHMACSHA256,
			},
			Session: SessionConfig{
				TTLHours:        7 * 24,
				CleanupInterval: 60,
			},
			Registration: RegistrationConfig{
				MaxPublicLevel: 2,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		Ingest: IngestConfig{
			Threshold: 120,
			MQTTTopic: "dcsense/controller/+/readings",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DCSENSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DCSENSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DCSENSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DCSENSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("DCSENSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DCSENSE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("DCSENSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - always override the credential key in production
	if v := os.Getenv("DCSENSE_CREDENTIAL_KEY"); v != "" {
		cfg.Security.Credentials.Key = v
	}
	if v := os.Getenv("DCSENSE_ADMIN_PASSWORD"); v != "" {
		cfg.Security.BootstrapAdmin.Password = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Every stored digest is bound to this key. A short or shared key makes
	// offline guessing against a leaked users table cheap.
	const minCredentialKeyLength = 32
	if c.Security.Credentials.Key == "" {
		errs = append(errs, "security.credentials.key is required (set DCSENSE_CREDENTIAL_KEY environment variable)")
	} else if len(c.Security.Credentials.Key) < minCredentialKeyLength {
		errs = append(errs, "security.credentials.key must be at least 32 characters")
	}

	switch c.Security.Credentials.Scheme {
	case SchemeHMACSHA256, SchemeArgon2id:
	default:
		errs = append(errs, fmt.Sprintf("security.credentials.scheme must be %q or %q", SchemeHMACSHA256, SchemeArgon2id))
	}

	if c.Security.Session.TTLHours <= 0 {
		errs = append(errs, "security.session.ttl_hours must be positive")
	}

	if l := c.Security.Registration.MaxPublicLevel; l < 1 || l > 3 {
		errs = append(errs, "security.registration.max_public_level must be between 1 and 3")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when rate limiting is enabled")
	}

	if c.Ingest.Threshold < 1 {
		errs = append(errs, "ingest.threshold must be at least 1")
	}

	if c.MQTT.Enabled && !strings.Contains(c.Ingest.MQTTTopic, "+") {
		errs = append(errs, "ingest.mqtt_topic must contain a '+' wildcard for the controller")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SessionTTL returns the session ticket lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.Session.TTLHours) * time.Hour
}

// TicketCleanupInterval returns how often expired tickets are purged.
func (c *Config) TicketCleanupInterval() time.Duration {
	return time.Duration(c.Security.Session.CleanupInterval) * time.Minute
}
