// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast
// on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	API     APIConfig
	Server  ServerConfig
	Sync    SyncConfig
	Export  ExportConfig
	Update  UpdateConfig
	Logging LoggingConfig
}

// APIConfig holds eLabFTW API client settings.
type APIConfig struct {
	// BaseURL is the full API base, including the /api/v2 suffix,
	// e.g. https://elab.example.org/api/v2 (required)
	BaseURL string `env:"ELAB_API_URL" envAlt:"ELAB_HOST_URL" required:"true"`

	// Token is the personal API token created in the eLabFTW user panel (required)
	Token string `env:"ELAB_API_TOKEN" envAlt:"ELAB_API_KEY" required:"true"`

	// Timeout is the per-request HTTP timeout (default: 90s)
	Timeout time.Duration `env:"ELAB_API_TIMEOUT" default:"90s"`

	// VerifyTLS controls server certificate verification. Only disable
	// for self-signed institutional installs (default: true)
	VerifyTLS bool `env:"ELAB_VERIFY_TLS" default:"true"`

	// RequestsPerSecond is the client-side rate limit (default: 5)
	RequestsPerSecond float64 `env:"ELAB_REQUESTS_PER_SECOND" default:"5"`

	// Burst is the rate limiter burst size (default: 5)
	Burst int `env:"ELAB_BURST" default:"5"`

	// PageLimit is the page size for listing resources (default: 1000)
	PageLimit int `env:"ELAB_PAGE_LIMIT" default:"1000"`

	// ExperimentPageLimit is the page size for listing experiments,
	// which carry full bodies and paginate slowly (default: 30)
	ExperimentPageLimit int `env:"ELAB_EXPERIMENT_PAGE_LIMIT" default:"30"`

	// MinPageLimit is the floor when a timeout halves the page size (default: 5)
	MinPageLimit int `env:"ELAB_MIN_PAGE_LIMIT" default:"5"`

	// MaxRetries is the number of retries per page on timeout (default: 3)
	MaxRetries int `env:"ELAB_MAX_RETRIES" default:"3"`
}

// ServerConfig holds settings for the local form server.
type ServerConfig struct {
	// Host is the interface to bind to. Loopback by default: the form
	// server is a local GUI, not a shared service (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" default:"5000"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout bounds response writes. Zero keeps long sync runs
	// from being cut off mid-response (default: 0s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 15s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`

	// OpenBrowser opens the form in the default browser after the
	// server starts listening (default: true)
	OpenBrowser bool `env:"SERVER_OPEN_BROWSER" default:"true"`
}

// SyncConfig holds row synchronization settings.
type SyncConfig struct {
	// MaxFileSize is the maximum allowed input table size in bytes (default: 50MB)
	MaxFileSize int64 `env:"SYNC_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrentRuns caps simultaneous runs. Rows within a run are
	// always processed one at a time (default: 2)
	MaxConcurrentRuns int `env:"SYNC_MAX_CONCURRENT_RUNS" default:"2"`

	// MaxWaitTime is how long to wait for a run slot (default: 10s)
	MaxWaitTime time.Duration `env:"SYNC_MAX_WAIT_TIME" default:"10s"`

	// RunTimeout is the maximum duration for a single run (default: 30m)
	RunTimeout time.Duration `env:"SYNC_RUN_TIMEOUT" default:"30m"`

	// FlashErrorLimit is how many per-row error messages to include in
	// the summary flash string (default: 5)
	FlashErrorLimit int `env:"SYNC_FLASH_ERROR_LIMIT" default:"5"`

	// FailedRowsReport writes "<input> - failed.csv" beside the input
	// when a run has failed rows (default: true)
	FailedRowsReport bool `env:"SYNC_FAILED_ROWS_REPORT" default:"true"`
}

// ExportConfig holds export output settings.
type ExportConfig struct {
	// Dir is where auto-named exports land. Empty means the current
	// working directory (default: "")
	Dir string `env:"EXPORT_DIR"`

	// Format is the default output format when the chosen filename has
	// no recognized extension: xlsx or csv (default: xlsx)
	Format string `env:"EXPORT_FORMAT" default:"xlsx"`
}

// UpdateConfig holds release check settings.
type UpdateConfig struct {
	// Repo is the owner/name GitHub repository checked for releases
	// (default: elabsync/elabsync)
	Repo string `env:"UPDATE_REPO" default:"elabsync/elabsync"`

	// Timeout is the release check HTTP timeout (default: 10s)
	Timeout time.Duration `env:"UPDATE_TIMEOUT" default:"10s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
