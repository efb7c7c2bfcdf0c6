package mysql

import "time"

// Config captures MySQL connection settings derived from application settings.
type Config struct {
	// ConnString is a complete go-sql-driver DSN. When set, the discrete
	// fields below are ignored.
	ConnString string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
}
