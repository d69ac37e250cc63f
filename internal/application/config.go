package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// Environment variables that override the configuration file.
const (
	// EnvConfigPath names the configuration file when no -config flag is
	// given.
	EnvConfigPath = "LEADERBOARD_CONFIG"
	// EnvAPIPort overrides the port of server.addr.
	EnvAPIPort = "API_PORT"
	// EnvGroundTruthPath overrides ground_truth.path.
	EnvGroundTruthPath = "GROUND_TRUTH_PATH"
)

// Config is the complete configuration of the leaderboard service and its
// tools. Use DefaultConfig or LoadConfig to obtain one; the zero value is
// not valid.
type Config struct {
	// GroundTruth locates the reference record and configures the
	// evaluation window cut from it.
	GroundTruth GroundTruthConfig `yaml:"ground_truth"`
	// Store selects and tunes the leaderboard backend.
	Store StoreConfig `yaml:"store"`
	// Retry configures retries of transient store failures.
	Retry RetryConfig `yaml:"retry"`
	// CircuitBreaker stops calling an unavailable store for a while.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Outbox configures deferred writes of entries whose upsert failed.
	Outbox OutboxConfig `yaml:"outbox"`
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`
	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`
}

// GroundTruthConfig describes the ground-truth CSV.
type GroundTruthConfig struct {
	// Path is the CSV file. It is read on every submission so that an
	// updated file takes effect without a restart.
	Path string `yaml:"path" validate:"required"`
	// DayColumn is the header of the day column used by the fixed_start
	// policy.
	DayColumn string `yaml:"day_column" validate:"required"`
	// TemperatureColumn is the header of the observed value column.
	TemperatureColumn string `yaml:"temperature_column" validate:"required"`
	// Anchor selects the evaluation window.
	Anchor AnchorConfig `yaml:"anchor"`
}

// AnchorConfig selects how the evaluation window is cut from the record.
type AnchorConfig struct {
	// Policy is fixed_start or tail.
	Policy string `yaml:"policy" validate:"required,anchorpolicy"`
	// StartDay is the first day of the window under fixed_start.
	StartDay int `yaml:"start_day" validate:"gte=0"`
	// Window is the number of trailing points kept under tail. It must
	// cover the longest scoring horizon.
	Window int `yaml:"window" validate:"gte=1440"`
}

// StoreConfig selects the leaderboard backend.
type StoreConfig struct {
	// Backend is file, sqlite or memory.
	Backend string `yaml:"backend" validate:"required,oneof=file sqlite memory"`
	// Path is the blob directory for file and the database file for
	// sqlite. It is ignored by memory.
	Path string `yaml:"path" validate:"required_unless=Backend memory"`
	// Key is the blob key of the leaderboard document.
	Key string `yaml:"key" validate:"required,excludesall=/"`
	// MaxConflictAttempts bounds optimistic write attempts against a blob
	// shared with other processes.
	MaxConflictAttempts int `yaml:"max_conflict_attempts" validate:"gte=1,lte=100"`
}

// RetryConfig configures exponential backoff for transient store errors.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`
	// InitialWaitMS is the delay before the first retry.
	InitialWaitMS int `yaml:"initial_wait_ms" validate:"gte=1"`
	// MaxWaitMS caps the delay between retries.
	MaxWaitMS int `yaml:"max_wait_ms" validate:"gtefield=InitialWaitMS"`
}

// InitialWait returns InitialWaitMS as a duration.
func (r RetryConfig) InitialWait() time.Duration {
	return time.Duration(r.InitialWaitMS) * time.Millisecond
}

// MaxWait returns MaxWaitMS as a duration.
func (r RetryConfig) MaxWait() time.Duration {
	return time.Duration(r.MaxWaitMS) * time.Millisecond
}

// CircuitBreakerConfig configures the store circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive transient failures that
	// open the circuit. Zero disables the breaker.
	MaxFailures int `yaml:"max_failures" validate:"gte=0"`
	// CooldownSeconds is how long the circuit stays open before a probe.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"gte=1"`
}

// Cooldown returns CooldownSeconds as a duration.
func (c CircuitBreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// OutboxConfig configures deferred persistence.
type OutboxConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression or descriptor such as "@every 30s".
	// Empty means the outbox default.
	Schedule string `yaml:"schedule" validate:"omitempty,cronspec"`
	// Capacity bounds the number of queued teams.
	Capacity int `yaml:"capacity" validate:"gte=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address, for example ":8080".
	Addr string `yaml:"addr" validate:"required"`
	// AllowedOrigins lists CORS origins. Empty allows none.
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
	// MaxUploadBytes bounds the size of an uploaded predictions file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"gte=1"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"gte=1"`
}

// ShutdownTimeout returns ShutdownTimeoutSeconds as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the configuration used for every field the file
// leaves out. Its ground-truth path is empty and must be provided.
func DefaultConfig() Config {
	return Config{
		GroundTruth: GroundTruthConfig{
			DayColumn:         "day",
			TemperatureColumn: "temperature",
			Anchor: AnchorConfig{
				Policy:   string(domain.AnchorFixedStart),
				StartDay: domain.DefaultStartDay,
				Window:   domain.Horizon60Days,
			},
		},
		Store: StoreConfig{
			Backend:             "file",
			Path:                "data",
			Key:                 "leaderboard.json",
			MaxConflictAttempts: 5,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialWaitMS: 100,
			MaxWaitMS:     2000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:     5,
			CooldownSeconds: 30,
		},
		Outbox: OutboxConfig{
			Enabled:  true,
			Schedule: "@every 30s",
			Capacity: 1000,
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			MaxUploadBytes:         10 << 20,
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Anchor converts the anchor section into the domain type.
func (c Config) Anchor() domain.Anchor {
	return domain.Anchor{
		Policy:   domain.AnchorPolicy(c.GroundTruth.Anchor.Policy),
		StartDay: c.GroundTruth.Anchor.StartDay,
		Window:   c.GroundTruth.Anchor.Window,
	}
}

// LoadConfig reads, decodes and validates the configuration file at path,
// applying environment overrides from os.Getenv.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data over DefaultConfig, applies overrides from
// getenv and validates the result. Unknown fields are rejected so that a
// typo does not silently fall back to a default. A nil getenv disables
// overrides.
func ParseConfig(data []byte, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	if getenv != nil {
		if err := applyEnv(&cfg, getenv); err != nil {
			return nil, err
		}
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if port := strings.TrimSpace(getenv(EnvAPIPort)); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid %s %q", EnvAPIPort, port)
		}
		host := cfg.Server.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		cfg.Server.Addr = host + ":" + port
	}
	if path := strings.TrimSpace(getenv(EnvGroundTruthPath)); path != "" {
		cfg.GroundTruth.Path = path
	}
	return nil
}

// ValidateConfig checks cfg against its struct tags and the custom
// anchorpolicy and cronspec rules.
func ValidateConfig(cfg *Config) error {
	v, err := newConfigValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	return nil
}

func newConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("anchorpolicy", validateAnchorPolicy); err != nil {
		return nil, fmt.Errorf("failed to register anchorpolicy validator: %w", err)
	}
	if err := v.RegisterValidation("cronspec", validateCronSpec); err != nil {
		return nil, fmt.Errorf("failed to register cronspec validator: %w", err)
	}
	return v, nil
}

// validateAnchorPolicy accepts the names of the supported anchor policies.
func validateAnchorPolicy(fl validator.FieldLevel) bool {
	switch domain.AnchorPolicy(fl.Field().String()) {
	case domain.AnchorFixedStart, domain.AnchorTail:
		return true
	default:
		return false
	}
}

// validateCronSpec accepts anything the outbox scheduler can parse.
func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}
