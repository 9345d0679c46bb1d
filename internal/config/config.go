package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Snapshot store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	// Database connection. Optional unless the postgres backend is selected;
	// when set it also enables SQL table sources.
	DatabaseURL  string
	MaxRows      int
	QueryTimeout time.Duration

	// Snapshot store.
	StoreBackend string // "memory" (default), "file" or "postgres"
	StoreFile    string // JSON document path for the file backend

	// Profiling.
	PolicyFile        string // optional path to policy YAML
	CategoryThreshold float64
	ExclusiveDatetime bool

	// Bootstrap.
	BootstrapResamples int
	ConfidenceLevel    float64
	BootstrapWorkers   int
	RandomSeed         *uint64 // nil = unseeded

	// Per-call caps on work requested by tool callers.
	MaxResamples  int
	MaxSampleSize int

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // required when transport=http

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool // enable OpenTelemetry tracing and metrics

	// CLI-only fields (not settable via env vars).
	AuditLog string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL        *string
	LogLevel           *string
	MaxRows            *int
	QueryTimeout       *time.Duration
	StoreBackend       *string
	StoreFile          *string
	PolicyFile         *string
	CategoryThreshold  *float64
	BootstrapResamples *int
	ConfidenceLevel    *float64
	BootstrapWorkers   *int
	RandomSeed         *uint64
	MaxResamples       *int
	MaxSampleSize      *int
	Transport          *string
	HTTPAddr           *string
	HTTPBearerToken    *string
	ExclusiveDatetime  bool
	OTelEnabled        bool
	AuditLog           string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MaxRows:             100000,
		QueryTimeout:        30 * time.Second,
		StoreBackend:        StoreMemory,
		StoreFile:           "colprobe_snapshots.json",
		CategoryThreshold:   0.2,
		BootstrapResamples:  1000,
		ConfidenceLevel:     95,
		BootstrapWorkers:    1,
		MaxResamples:        100000,
		MaxSampleSize:       1000000,
		Transport:           "stdio",
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("STORE_FILE"); v != "" {
		cfg.StoreFile = v
	}
	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if err := loadProfilingEnvVars(cfg); err != nil {
		return err
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadProfilingEnvVars reads classifier and bootstrap environment variables.
// Range checks happen in validate so flags and env share them.
func loadProfilingEnvVars(cfg *Config) error {
	if v := os.Getenv("CATEGORY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CATEGORY_THRESHOLD value %q: %w", v, err)
		}
		cfg.CategoryThreshold = f
	}
	if v := os.Getenv("EXCLUSIVE_DATETIME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EXCLUSIVE_DATETIME value %q: %w", v, err)
		}
		cfg.ExclusiveDatetime = b
	}
	if v := os.Getenv("BOOTSTRAP_RESAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BOOTSTRAP_RESAMPLES value %q: must be an integer", v)
		}
		cfg.BootstrapResamples = n
	}
	if v := os.Getenv("CONFIDENCE_LEVEL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CONFIDENCE_LEVEL value %q: %w", v, err)
		}
		cfg.ConfidenceLevel = f
	}
	if v := os.Getenv("BOOTSTRAP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BOOTSTRAP_WORKERS value %q: must be an integer", v)
		}
		cfg.BootstrapWorkers = n
	}
	if v := os.Getenv("RANDOM_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid RANDOM_SEED value %q: must be a non-negative integer", v)
		}
		cfg.RandomSeed = &n
	}
	if v := os.Getenv("MAX_RESAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_RESAMPLES value %q: must be a positive integer", v)
		}
		cfg.MaxResamples = n
	}
	if v := os.Getenv("MAX_SAMPLE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_SAMPLE_SIZE value %q: must be a positive integer", v)
		}
		cfg.MaxSampleSize = n
	}
	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.StoreBackend != nil {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(*o.StoreBackend))
	}
	if o.StoreFile != nil {
		cfg.StoreFile = *o.StoreFile
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.CategoryThreshold != nil {
		cfg.CategoryThreshold = *o.CategoryThreshold
	}
	if o.BootstrapResamples != nil {
		cfg.BootstrapResamples = *o.BootstrapResamples
	}
	if o.ConfidenceLevel != nil {
		cfg.ConfidenceLevel = *o.ConfidenceLevel
	}
	if o.BootstrapWorkers != nil {
		cfg.BootstrapWorkers = *o.BootstrapWorkers
	}
	if o.RandomSeed != nil {
		seed := *o.RandomSeed
		cfg.RandomSeed = &seed
	}
	if o.MaxResamples != nil {
		if *o.MaxResamples <= 0 {
			return fmt.Errorf("invalid --max-resamples value: must be a positive integer")
		}
		cfg.MaxResamples = *o.MaxResamples
	}
	if o.MaxSampleSize != nil {
		if *o.MaxSampleSize <= 0 {
			return fmt.Errorf("invalid --max-sample-size value: must be a positive integer")
		}
		cfg.MaxSampleSize = *o.MaxSampleSize
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	cfg.ExclusiveDatetime = cfg.ExclusiveDatetime || o.ExclusiveDatetime

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreFile:
		if cfg.StoreFile == "" {
			return fmt.Errorf("STORE_FILE is required when STORE_BACKEND is %q", StoreFile)
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q (set via env var or --database-url flag)", StorePostgres)
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND value %q: must be \"memory\", \"file\" or \"postgres\"", cfg.StoreBackend)
	}

	if cfg.CategoryThreshold <= 0 || cfg.CategoryThreshold > 1 {
		return fmt.Errorf("invalid CATEGORY_THRESHOLD value %g: must be in (0, 1]", cfg.CategoryThreshold)
	}
	if cfg.BootstrapResamples < 2 {
		return fmt.Errorf("invalid BOOTSTRAP_RESAMPLES value %d: must be at least 2", cfg.BootstrapResamples)
	}
	if cfg.BootstrapResamples > cfg.MaxResamples {
		return fmt.Errorf("BOOTSTRAP_RESAMPLES (%d) must not exceed MAX_RESAMPLES (%d)", cfg.BootstrapResamples, cfg.MaxResamples)
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 100 {
		return fmt.Errorf("invalid CONFIDENCE_LEVEL value %g: must be in (0, 100)", cfg.ConfidenceLevel)
	}
	if cfg.BootstrapWorkers < 1 {
		return fmt.Errorf("invalid BOOTSTRAP_WORKERS value %d: must be a positive integer", cfg.BootstrapWorkers)
	}

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == "http" && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
