package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/spec-kit/guestpass-service/internal/config"
)

// Postgres owns the registration store's pgx pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres opens the pool and checks the server answers before returning.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))
	return &Postgres{Pool: pool}, nil
}

func poolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	return poolCfg, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// PoolHandle returns the underlying pgx pool.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if p == nil {
		return nil
	}
	return p.Pool
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.Pool.Ping(ctx)
}

// Collector exports the pool's connection statistics.
func (p *Postgres) Collector() prometheus.Collector {
	return NewPoolCollector(p.Pool)
}

var (
	poolAcquiredDesc = prometheus.NewDesc("guestpass_db_pool_acquired_conns", "Connections currently checked out of the pool", nil, nil)
	poolIdleDesc     = prometheus.NewDesc("guestpass_db_pool_idle_conns", "Idle connections in the pool", nil, nil)
	poolTotalDesc    = prometheus.NewDesc("guestpass_db_pool_total_conns", "Open connections in the pool", nil, nil)
	poolMaxDesc      = prometheus.NewDesc("guestpass_db_pool_max_conns", "Configured pool size", nil, nil)
	poolAcquireDesc  = prometheus.NewDesc("guestpass_db_pool_acquires_total", "Successful connection acquires", nil, nil)
	poolEmptyDesc    = prometheus.NewDesc("guestpass_db_pool_empty_acquires_total", "Acquires that had to wait for a connection", nil, nil)
	poolWaitDesc     = prometheus.NewDesc("guestpass_db_pool_acquire_wait_seconds_total", "Time spent acquiring connections", nil, nil)
)

type poolCollector struct {
	pool *pgxpool.Pool
}

// NewPoolCollector reads pool.Stat on every scrape.
func NewPoolCollector(pool *pgxpool.Pool) prometheus.Collector {
	return &poolCollector{pool: pool}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolAcquiredDesc
	ch <- poolIdleDesc
	ch <- poolTotalDesc
	ch <- poolMaxDesc
	ch <- poolAcquireDesc
	ch <- poolEmptyDesc
	ch <- poolWaitDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(st.MaxConns()))
	ch <- prometheus.MustNewConstMetric(poolAcquireDesc, prometheus.CounterValue, float64(st.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(poolEmptyDesc, prometheus.CounterValue, float64(st.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(poolWaitDesc, prometheus.CounterValue, st.AcquireDuration().Seconds())
}
