// Package config loads server and CLI settings from environment variables,
// applies defaults and validates everything on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the per-request middleware deadline.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `env:"SQLITE_PATH" default:"testcatalog.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 20MB).
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrent caps parallel import sessions.
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a request waits for an import slot.
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// SessionTimeout bounds a single session; 0 disables it.
	SessionTimeout time.Duration `env:"IMPORT_SESSION_TIMEOUT" default:"5m"`

	// DefaultPolicy applies when a request names none: skip or update.
	DefaultPolicy string `env:"IMPORT_DUPLICATE_POLICY" default:"skip"`

	// IDPrefix starts generated test ids.
	IDPrefix string `env:"IMPORT_ID_PREFIX" default:"TTES"`
}

// Export sinks.
const (
	SinkFilesystem = "fs"
	SinkS3         = "s3"
)

// ExportConfig holds export generation and publishing settings.
type ExportConfig struct {
	// Sink is fs or s3.
	Sink string `env:"EXPORT_SINK" default:"fs"`

	// Dir is the filesystem sink root.
	Dir string `env:"EXPORT_DIR" default:"./exports"`

	S3Bucket    string `env:"EXPORT_S3_BUCKET"`
	S3Region    string `env:"EXPORT_S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	S3Endpoint  string `env:"EXPORT_S3_ENDPOINT"`
	S3PathStyle bool   `env:"EXPORT_S3_PATH_STYLE" default:"false"`
	S3Prefix    string `env:"EXPORT_S3_PREFIX"`

	// Pretty indents JSON exports.
	Pretty bool `env:"EXPORT_PRETTY" default:"false"`

	// DualResource is the default FHIR bundle mode.
	DualResource bool `env:"EXPORT_FHIR_DUAL_RESOURCE" default:"true"`

	// FHIRBaseURL fills bundle entry fullUrl when set.
	FHIRBaseURL string `env:"EXPORT_FHIR_BASE_URL"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute applies to read endpoints.
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// ImportLimit applies to import and publish endpoints.
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
