package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Core configuration structure
// =============================================================================

// Config is the complete coterm configuration.
type Config struct {
	// Database is the shared relational store every component talks to.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis backs the best-effort send notification channel.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Heartbeat tunes the interactive-path heartbeat updater.
	Heartbeat HeartbeatConfig `yaml:"heartbeat" env:"HEARTBEAT"`

	// Scanner tunes the background staleness scanner daemon.
	Scanner ScannerConfig `yaml:"scanner" env:"SCANNER"`

	// CodeSearch points at the local code-structure daemon socket.
	CodeSearch CodeSearchConfig `yaml:"code_search" env:"CODE_SEARCH"`

	// Trace configures the session-tracing span API client.
	Trace TraceConfig `yaml:"trace" env:"TRACE"`

	// Server configures the daemon's metrics/health HTTP listener.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// StateDir holds the debounce cache, scanner lock file and the default
	// sqlite database. Empty means ~/.local/state/coterm.
	StateDir string `yaml:"state_dir" env:"STATE_DIR"`
}

// DatabaseConfig configures the shared relational store.
type DatabaseConfig struct {
	// URL is an explicit connection string. postgres:// and postgresql://
	// select the postgres dialect; anything else is treated as a sqlite file
	// path. Empty means "resolve through the env fallback chain".
	URL string `yaml:"url" env:"URL"`
	// MaxOpenConns caps open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns caps idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime bounds connection lifetime.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// OpTimeout bounds every store round-trip on the interactive path.
	// Kept in single-digit seconds: hooks sit on a latency-sensitive path.
	OpTimeout time.Duration `yaml:"op_timeout" env:"OP_TIMEOUT"`
}

// RedisConfig configures the optional notification nudge.
type RedisConfig struct {
	// Enabled turns the nudge on. Messaging works without it; polling is the
	// delivery contract, the nudge only shortens latency.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the redis address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password is the redis password.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB is the database number.
	DB int `yaml:"db" env:"DB"`
}

// HeartbeatConfig tunes the heartbeat updater.
type HeartbeatConfig struct {
	// DebounceInterval suppresses repeat prompt-path writes for one session.
	DebounceInterval time.Duration `yaml:"debounce_interval" env:"DEBOUNCE_INTERVAL"`
	// SkipPrefix disables heartbeats inside the assistant's own config tree.
	// Empty means $HOME/.claude.
	SkipPrefix string `yaml:"skip_prefix" env:"SKIP_PREFIX"`
}

// ScannerConfig tunes the staleness scanner.
type ScannerConfig struct {
	// PollInterval is the scan tick period.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// StalenessThreshold is the max heartbeat gap before a session is idle.
	StalenessThreshold time.Duration `yaml:"staleness_threshold" env:"STALENESS_THRESHOLD"`
	// MaxConcurrent caps simultaneously running extractions.
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// ExtractionTimeout is the wall-clock deadline per extraction; past it the
	// child is force-killed and the attempt counts as a failure.
	ExtractionTimeout time.Duration `yaml:"extraction_timeout" env:"EXTRACTION_TIMEOUT"`
	// ExtractCommand is the external summarizer invocation; the session id and
	// project path are appended as arguments. Exit 0 is success.
	ExtractCommand []string `yaml:"extract_command" env:"EXTRACT_COMMAND"`
	// OpTimeout bounds scanner-side store round-trips. Longer than the
	// interactive-path timeout: nobody is waiting on a tick.
	OpTimeout time.Duration `yaml:"op_timeout" env:"OP_TIMEOUT"`
}

// CodeSearchConfig points at the external code-structure daemon.
type CodeSearchConfig struct {
	// SocketPath is the daemon's unix socket.
	SocketPath string `yaml:"socket_path" env:"SOCKET_PATH"`
	// Timeout bounds dial and per-command IO.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TraceConfig configures the span API client.
type TraceConfig struct {
	// Endpoint is the span API base URL. Empty disables tracing.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Token is the bearer token. Empty disables tracing.
	Token string `yaml:"token" env:"TOKEN"`
	// Timeout bounds each span call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Debug logs span payloads.
	Debug bool `yaml:"debug" env:"DEBUG"`
}

// ServerConfig configures the daemon's HTTP listener.
type ServerConfig struct {
	// MetricsPort serves /metrics and /health.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap output paths.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COTERM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads configuration.
// Priority: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile loads config from a YAML file. A missing file is not an error;
// defaults apply.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Validation and resolution helpers
// =============================================================================

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Scanner.PollInterval <= 0 {
		errs = append(errs, "scanner poll_interval must be positive")
	}
	if c.Scanner.StalenessThreshold <= 0 {
		errs = append(errs, "scanner staleness_threshold must be positive")
	}
	if c.Scanner.MaxConcurrent <= 0 {
		errs = append(errs, "scanner max_concurrent must be positive")
	}
	if c.Heartbeat.DebounceInterval < 0 {
		errs = append(errs, "heartbeat debounce_interval must not be negative")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ResolveStateDir returns the state directory, defaulting to
// ~/.local/state/coterm when unset.
func (c *Config) ResolveStateDir() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "coterm")
	}
	return filepath.Join(home, ".local", "state", "coterm")
}

// ResolveDatabaseURL resolves the store connection string through the
// documented fallback chain: explicit config/override var -> generic var ->
// legacy hook var -> local sqlite default under the state dir.
func (c *Config) ResolveDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	for _, key := range []string{"COTERM_DATABASE_URL", "DATABASE_URL", "CLAUDE_HOOKS_DB_URL"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return filepath.Join(c.ResolveStateDir(), "coterm.db")
}

// IsPostgresURL reports whether a resolved connection string selects the
// postgres dialect. Everything else is treated as a sqlite file path.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// MustLoad loads configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
