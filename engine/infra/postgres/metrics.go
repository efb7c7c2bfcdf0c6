package postgres

import (
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultPoolLabel = "default"

var (
	connectionsOpenDesc = prometheus.NewDesc(
		"ordertx_postgres_connections_open",
		"Number of open Postgres connections",
		[]string{"pool"}, nil,
	)
	connectionsInUseDesc = prometheus.NewDesc(
		"ordertx_postgres_connections_in_use",
		"Number of Postgres connections currently in use",
		[]string{"pool"}, nil,
	)
	connectionsIdleDesc = prometheus.NewDesc(
		"ordertx_postgres_connections_idle",
		"Number of idle Postgres connections",
		[]string{"pool"}, nil,
	)
	maxConnectionsDesc = prometheus.NewDesc(
		"ordertx_postgres_max_open_connections",
		"Configured Postgres connection pool size",
		[]string{"pool"}, nil,
	)
	acquireWaitDesc = prometheus.NewDesc(
		"ordertx_postgres_connection_wait_seconds_total",
		"Cumulative time spent waiting for a connection from the pool",
		[]string{"pool"}, nil,
	)
)

// poolMetrics exposes pgxpool statistics as a prometheus collector.
type poolMetrics struct {
	label      string
	registerer prometheus.Registerer
	pool       atomic.Pointer[pgxpool.Pool]
}

func configurePostgresMetrics(cfg *Config) (*poolMetrics, error) {
	if cfg == nil || cfg.Registerer == nil {
		return nil, nil
	}
	m := &poolMetrics{label: computePoolLabel(cfg), registerer: cfg.Registerer}
	if err := cfg.Registerer.Register(m); err != nil {
		return nil, fmt.Errorf("postgres: register pool metrics: %w", err)
	}
	return m, nil
}

func computePoolLabel(cfg *Config) string {
	if cfg.DBName != "" {
		return cfg.DBName
	}
	return defaultPoolLabel
}

func (p *poolMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsOpenDesc
	ch <- connectionsInUseDesc
	ch <- connectionsIdleDesc
	ch <- maxConnectionsDesc
	ch <- acquireWaitDesc
}

func (p *poolMetrics) Collect(ch chan<- prometheus.Metric) {
	pool := p.pool.Load()
	if pool == nil {
		return
	}
	stats := pool.Stat()
	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, p.label)
	}
	gauge(connectionsOpenDesc, float64(stats.TotalConns()))
	gauge(connectionsInUseDesc, float64(stats.AcquiredConns()))
	gauge(connectionsIdleDesc, float64(stats.IdleConns()))
	gauge(maxConnectionsDesc, float64(stats.MaxConns()))
	ch <- prometheus.MustNewConstMetric(
		acquireWaitDesc, prometheus.CounterValue, stats.EmptyAcquireWaitTime().Seconds(), p.label,
	)
}

func (p *poolMetrics) attach(pool *pgxpool.Pool) {
	if p == nil || pool == nil {
		return
	}
	p.pool.Store(pool)
}

func (p *poolMetrics) unregister() {
	if p == nil {
		return
	}
	p.registerer.Unregister(p)
	p.pool.Store(nil)
}
