// Package config handles runtime configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Engine names accepted by Config.Engine.
const (
	EngineMemory = "memory"
	EngineDuckDB = "duckdb"
)

// Defaults applied when a setting is absent.
const (
	DefaultLogLevel         = "info"
	DefaultMaxCubeKeys      = 12
	DefaultStarlarkMaxSteps = uint64(1_000_000)
	DefaultStarlarkTimeout  = 2 * time.Second
	DefaultBatchParallelism = 4
)

// Config holds the settings of the pipeline runner.
type Config struct {
	LogLevel  string // log level: debug, info, warn, error (default "info")
	LogFormat string // "text" (default) or "json"

	Engine    string // tabular engine: memory (default) or duckdb
	DuckDBDSN string // DuckDB data source; empty means an in-memory database

	MaxCubeKeys      int           // bound on cube grouping keys (default 12)
	StarlarkMaxSteps uint64        // Starlark execution steps per call
	StarlarkTimeout  time.Duration // Starlark wall time per call
	BatchParallelism int           // pipelines run concurrently by RunBatch

	// AllowUnknownFields relaxes strict decoding of pipeline documents.
	AllowUnknownFields bool

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// Default returns a configuration holding every default.
func Default() *Config {
	return &Config{
		LogLevel:         DefaultLogLevel,
		LogFormat:        "text",
		Engine:           EngineMemory,
		MaxCubeKeys:      DefaultMaxCubeKeys,
		StarlarkMaxSteps: DefaultStarlarkMaxSteps,
		StarlarkTimeout:  DefaultStarlarkTimeout,
		BatchParallelism: DefaultBatchParallelism,
	}
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w at the configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMemory, EngineDuckDB:
	default:
		return fmt.Errorf("MRA_ENGINE must be %q or %q, got %q", EngineMemory, EngineDuckDB, c.Engine)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("MRA_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.MaxCubeKeys < 1 {
		return fmt.Errorf("MRA_MAX_CUBE_KEYS must be positive, got %d", c.MaxCubeKeys)
	}
	// 2^k grouping sets; beyond 20 keys a cube cannot fit in memory anyway.
	if c.MaxCubeKeys > 20 {
		return fmt.Errorf("MRA_MAX_CUBE_KEYS must be at most 20, got %d", c.MaxCubeKeys)
	}
	if c.StarlarkMaxSteps == 0 {
		return fmt.Errorf("MRA_STARLARK_MAX_STEPS must be positive")
	}
	if c.StarlarkTimeout <= 0 {
		return fmt.Errorf("MRA_STARLARK_TIMEOUT must be positive, got %s", c.StarlarkTimeout)
	}
	if c.BatchParallelism < 1 {
		return fmt.Errorf("MRA_BATCH_PARALLELISM must be positive, got %d", c.BatchParallelism)
	}
	if c.Engine == EngineMemory && c.DuckDBDSN != "" {
		c.Warnings = appendOnce(c.Warnings, "MRA_DUCKDB_DSN is set but MRA_ENGINE is memory; the DSN is ignored")
	}
	return nil
}

// LoadFromEnv loads the configuration from MRA_* environment variables on top
// of the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads an optional YAML config file, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MRA_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MRA_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MRA_ENGINE"); v != "" {
		c.Engine = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("MRA_DUCKDB_DSN"); ok {
		c.DuckDBDSN = v
	}
	if v := os.Getenv("MRA_MAX_CUBE_KEYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCubeKeys = n
		} else {
			c.warnf("ignoring MRA_MAX_CUBE_KEYS=%q: not an integer", v)
		}
	}
	if v := os.Getenv("MRA_STARLARK_MAX_STEPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.StarlarkMaxSteps = n
		} else {
			c.warnf("ignoring MRA_STARLARK_MAX_STEPS=%q: not an unsigned integer", v)
		}
	}
	if v := os.Getenv("MRA_STARLARK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.StarlarkTimeout = d
		} else {
			c.warnf("ignoring MRA_STARLARK_TIMEOUT=%q: not a duration", v)
		}
	}
	if v := os.Getenv("MRA_BATCH_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchParallelism = n
		} else {
			c.warnf("ignoring MRA_BATCH_PARALLELISM=%q: not an integer", v)
		}
	}
	c.AllowUnknownFields = parseBoolEnvDefault("MRA_ALLOW_UNKNOWN_FIELDS", c.AllowUnknownFields)
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
