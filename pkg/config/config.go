package config

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the complete configuration for the order transaction tool.
type Config struct {
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Order    OrderConfig    `koanf:"order"    validate:"required"`
	Runtime  RuntimeConfig  `koanf:"runtime"  validate:"required"`
}

// DatabaseConfig contains the storage session settings.
type DatabaseConfig struct {
	Driver          string          `koanf:"driver"           validate:"oneof=sqlite mysql postgres" env:"ORDERTX_DB_DRIVER"`
	ConnString      string          `koanf:"conn_string"                                             env:"ORDERTX_DB_CONN_STRING"`
	Host            string          `koanf:"host"                                                    env:"ORDERTX_DB_HOST"`
	Port            string          `koanf:"port"                                                    env:"ORDERTX_DB_PORT"`
	User            string          `koanf:"user"                                                    env:"ORDERTX_DB_USER"`
	Password        SensitiveString `koanf:"password"                                                env:"ORDERTX_DB_PASSWORD"         sensitive:"true"`
	DBName          string          `koanf:"name"                                                    env:"ORDERTX_DB_NAME"`
	SSLMode         string          `koanf:"ssl_mode"                                                env:"ORDERTX_DB_SSL_MODE"`
	Path            string          `koanf:"path"                                                    env:"ORDERTX_DB_PATH"`
	BusyTimeout     time.Duration   `koanf:"busy_timeout"                                            env:"ORDERTX_DB_BUSY_TIMEOUT"`
	ConnectAttempts int             `koanf:"connect_attempts" validate:"min=1"                       env:"ORDERTX_DB_CONNECT_ATTEMPTS"`
	ConnectBackoff  time.Duration   `koanf:"connect_backoff"                                         env:"ORDERTX_DB_CONNECT_BACKOFF"`
}

// OrderConfig contains the business rules applied by the order workflows.
type OrderConfig struct {
	// Threshold is the monthly total an order must help reach to be kept by
	// the savepoint workflow.
	Threshold string `koanf:"threshold" validate:"required,decimal" env:"ORDERTX_ORDER_THRESHOLD"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error" env:"ORDERTX_LOG_LEVEL"`
	LogJSON  bool   `koanf:"log_json"                                         env:"ORDERTX_LOG_JSON"`
}

// ThresholdDecimal returns the parsed order threshold.
func (c *OrderConfig) ThresholdDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.Threshold)
	if err != nil {
		return decimal.NewFromInt(DefaultOrderThreshold)
	}
	return d
}

// SensitiveString hides its value when formatted.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the underlying secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// Service defines the configuration management interface.
type Service interface {
	Load(ctx context.Context, sources ...Source) (*Config, error)
	Validate(config *Config) error
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

const (
	DefaultOrderThreshold  = 10000
	defaultConnectAttempts = 3
	defaultConnectBackoff  = 200 * time.Millisecond
	defaultBusyTimeout     = 5 * time.Second
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			User:            "root",
			DBName:          "jdbctransactiondemo",
			SSLMode:         "disable",
			Path:            "ordertx.db",
			BusyTimeout:     defaultBusyTimeout,
			ConnectAttempts: defaultConnectAttempts,
			ConnectBackoff:  defaultConnectBackoff,
		},
		Order: OrderConfig{
			Threshold: "10000",
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}

// Load loads configuration from defaults and environment.
func Load(ctx context.Context) (*Config, error) {
	return NewService().Load(ctx, NewDefaultProvider(), NewEnvProvider())
}
