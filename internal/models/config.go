// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, counter, audit, limits...)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Limit policies here are boot defaults only; the management API mutates them at runtime
package models

import (
	"errors"
	"fmt"
	"time"
)

// Counter backend type constants
const (
	CounterTypeRedis  = "redis"
	CounterTypeMemory = "memory"
)

// Audit store type constants
const (
	AuditTypePostgres = "postgres"
	AuditTypeSQLite   = "sqlite"
	AuditTypeMemory   = "memory"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Counter       CounterConfig       `yaml:"counter" json:"counter"`             // Shared counter backend
	Audit         AuditConfig         `yaml:"audit" json:"audit"`                 // Violation audit store
	Limits        LimitsConfig        `yaml:"limits" json:"limits"`               // Boot-time limit policies
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Management API authentication
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Structured logging
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// CounterConfig selects and configures the shared counter backend. The redis
// backend is required for multi-instance deployments; memory only counts
// requests seen by one process.
type CounterConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// AuditConfig selects and configures the violation audit store.
type AuditConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	// Buffer is the recorder's in-flight queue size; writes beyond it are
	// dropped with a warning rather than blocking the request path.
	Buffer int `yaml:"buffer" json:"buffer"`
	// Workers bounds concurrent audit writes.
	Workers int `yaml:"workers" json:"workers"`
	// WriteTimeout bounds a single audit write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// LimitsConfig holds the boot-time limit policies and extraction rules.
type LimitsConfig struct {
	IP           LimitPolicy `yaml:"ip" json:"ip"`
	User         LimitPolicy `yaml:"user" json:"user"`
	Organization LimitPolicy `yaml:"organization" json:"organization"`
	// Endpoints maps "METHOD route-template" to a stricter override,
	// e.g. "POST /auth/login".
	Endpoints map[string]LimitPolicy `yaml:"endpoints" json:"endpoints"`
	// BurstWindowSeconds is the sub-window used by burst thresholds.
	BurstWindowSeconds int64 `yaml:"burst_window_seconds" json:"burst_window_seconds"`
	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP. Leave off
	// unless a trusted proxy terminates all client connections.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
	// ExcludedPaths are matched by prefix before any counter work.
	ExcludedPaths []string `yaml:"excluded_paths" json:"excluded_paths"`
}

type SecurityConfig struct {
	EnableAuth bool   `yaml:"enable_auth" json:"enable_auth"`
	AdminToken string `yaml:"admin_token" json:"admin_token"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Tier budgets (ip 1000/h, user 500/h, organization 5000/h) partition shared
//   capacity conservatively; endpoint overrides tighten hot routes like login.
// - Memory counter/audit backends let the service run without external
//   dependencies; deployments switch to redis/postgres via config.
// - Proxy headers are untrusted by default to prevent spoofed-IP bypass.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{},
				AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         86400,
			},
		},
		Counter: CounterConfig{
			Type: CounterTypeMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Audit: AuditConfig{
			Type:         AuditTypeMemory,
			Buffer:       1024,
			Workers:      4,
			WriteTimeout: 5 * time.Second,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Limits: LimitsConfig{
			IP:           LimitPolicy{Tier: TierIP, Requests: 1000, WindowSeconds: 3600, BurstThreshold: 50, Enabled: true},
			User:         LimitPolicy{Tier: TierUser, Requests: 500, WindowSeconds: 3600, BurstThreshold: 25, Enabled: true},
			Organization: LimitPolicy{Tier: TierOrganization, Requests: 5000, WindowSeconds: 3600, Enabled: true},
			Endpoints: map[string]LimitPolicy{
				"POST /auth/login": {Tier: TierEndpoint, Requests: 5, WindowSeconds: 60, Enabled: true},
			},
			BurstWindowSeconds: 1,
			TrustProxyHeaders:  false,
			ExcludedPaths: []string{
				"/health",
				"/metrics",
				"/api/v1/docs",
				"/api/v1/openapi.yaml",
				"/static/",
			},
		},
		Security: SecurityConfig{
			EnableAuth: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "admission",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				SampleRate: 0.1,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Counter.Validate(); err != nil {
		return fmt.Errorf("invalid counter config: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("invalid audit config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid limits config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (cc *CounterConfig) Validate() error {
	switch cc.Type {
	case CounterTypeMemory:
		return nil
	case CounterTypeRedis:
		if cc.Redis.Addr == "" {
			return errors.New("redis addr is required for the redis counter backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid counter type: %s", cc.Type)
	}
}

func (ac *AuditConfig) Validate() error {
	switch ac.Type {
	case AuditTypeMemory:
	case AuditTypePostgres, AuditTypeSQLite:
		if ac.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s audit storage", ac.Type)
		}
	default:
		return fmt.Errorf("invalid audit type: %s", ac.Type)
	}

	if ac.Buffer <= 0 {
		return errors.New("audit buffer must be positive")
	}

	if ac.Workers <= 0 {
		return errors.New("audit workers must be positive")
	}

	return nil
}

func (lc *LimitsConfig) Validate() error {
	validate := func(name string, p LimitPolicy) error {
		if p.Requests <= 0 {
			return fmt.Errorf("%s: requests must be positive", name)
		}
		if p.WindowSeconds <= 0 {
			return fmt.Errorf("%s: window_seconds must be positive", name)
		}
		if p.BurstThreshold < 0 {
			return fmt.Errorf("%s: burst_threshold cannot be negative", name)
		}
		return nil
	}

	if err := validate("ip", lc.IP); err != nil {
		return err
	}
	if err := validate("user", lc.User); err != nil {
		return err
	}
	if err := validate("organization", lc.Organization); err != nil {
		return err
	}
	for endpoint, p := range lc.Endpoints {
		if err := validate(fmt.Sprintf("endpoint %q", endpoint), p); err != nil {
			return err
		}
	}

	if lc.BurstWindowSeconds <= 0 {
		return errors.New("burst_window_seconds must be positive")
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.EnableAuth && sec.AdminToken == "" {
		return errors.New("admin_token is required when auth is enabled")
	}
	return nil
}

func (lg *LoggingConfig) Validate() error {
	switch lg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lg.Level)
	}

	switch lg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lg.Format)
	}

	if lg.Output == "file" && lg.FilePath == "" {
		return errors.New("file_path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	return nil
}
