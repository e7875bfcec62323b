// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Batch    BatchConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Orphans  OrphanConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including the import drain (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-import requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects the document store backend and its collections.
type StoreConfig struct {
	// Backend is memory, postgres or firestore (default: memory)
	Backend string `env:"STORE_BACKEND" default:"memory"`

	// DatabaseURL is the PostgreSQL connection string, required for postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// FirestoreProject is the GCP project id, required for firestore.
	FirestoreProject string `env:"FIRESTORE_PROJECT" envAlt:"GOOGLE_CLOUD_PROJECT"`

	MetadataCollection string `env:"STORE_METADATA_COLLECTION" default:"userTables"`
	UsersCollection    string `env:"STORE_USERS_COLLECTION" default:"users"`
	AuditCollection    string `env:"STORE_AUDIT_COLLECTION" default:"auditLog"`
}

// RedisConfig configures the optional Redis instance holding the first-admin
// bootstrap flag. When Addr is empty the flag lives in the document store.
type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR"`
	Password     string `env:"REDIS_PASSWORD"`
	DB           int    `env:"REDIS_DB" default:"0"`
	BootstrapKey string `env:"REDIS_BOOTSTRAP_KEY" default:"tablekit:bootstrap:admin"`
}

// AuthConfig holds the settings for verifying session tokens.
type AuthConfig struct {
	// JWTSecret is the HMAC key shared with the identity provider (required)
	JWTSecret string `env:"AUTH_JWT_SECRET" required:"true"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `env:"AUTH_JWT_ISSUER"`
}

// BatchConfig bounds multi-document writes.
type BatchConfig struct {
	Parallelism int `env:"BATCH_PARALLELISM" default:"8"`
}

// ImportConfig holds file import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel imports (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an import slot (default: 15s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"15s"`

	// Timeout is the maximum duration of a single import request (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// CORSOrigins lists the origins allowed to call the API.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// OrphanConfig controls the periodic orphan collection report.
type OrphanConfig struct {
	Enabled  bool   `env:"ORPHAN_SCAN_ENABLED" default:"true"`
	Schedule string `env:"ORPHAN_SCAN_SCHEDULE" default:"@hourly"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Options converts the store section into docstore options.
func (c *StoreConfig) Options() docstore.Options {
	return docstore.Options{
		Backend:          c.Backend,
		DatabaseURL:      c.DatabaseURL,
		FirestoreProject: c.FirestoreProject,
		Pool: docstore.PoolOptions{
			MaxConns:        int32(c.MaxConns),
			MinConns:        int32(c.MinConns),
			MaxConnLifetime: c.MaxConnLifetime,
			MaxConnIdleTime: c.MaxConnIdleTime,
		},
	}
}
