package postgres

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds PostgreSQL connection settings for the driver.
// Prefer providing a DSN via ConnString. When empty, a DSN will be
// synthesized from the individual fields.
type Config struct {
	ConnString string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	ConnectTimeout     time.Duration
	PingTimeout        time.Duration
	HealthCheckPeriod  time.Duration
	HealthCheckTimeout time.Duration

	// Registerer receives the pool gauges. Nil disables pool metrics.
	Registerer prometheus.Registerer
}

func dsn(cfg *Config) string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		valueOrDefault(cfg.Host, "localhost"),
		valueOrDefault(cfg.Port, "5432"),
		valueOrDefault(cfg.User, "postgres"),
		cfg.Password,
		valueOrDefault(cfg.DBName, "postgres"),
		valueOrDefault(cfg.SSLMode, "disable"),
	)
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
