package database

import (
	"context"
	"fmt"
	"time"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnAttempts = 5
	defaultConnTimeout  = time.Second
)

// Postgres wraps one pgxpool.Pool plus the Thiht/transactor machinery that
// the repository layer uses to run a block of repository calls inside a
// single SQL transaction.
type Postgres struct {
	Pool       *pgxpool.Pool
	DBGetter   tx.DBGetter
	Transactor tx.Transactor
}

// Option configures New. Each database role (main, simulation) constructs
// its own Postgres with its own pool and its own options, per spec §5's
// one-connection-per-role model.
type Option func(*options)

type options struct {
	maxPoolSize       int32
	connTimeout       time.Duration
	healthCheckPeriod time.Duration
	isolation         pgx.TxIsoLevel
}

func MaxPoolSize(n int32) Option {
	return func(o *options) { o.maxPoolSize = n }
}

func ConnTimeout(seconds int) Option {
	return func(o *options) { o.connTimeout = time.Duration(seconds) * time.Second }
}

func HealthCheckPeriod(seconds int) Option {
	return func(o *options) { o.healthCheckPeriod = time.Duration(seconds) * time.Second }
}

func Isolation(level pgx.TxIsoLevel) Option {
	return func(o *options) { o.isolation = level }
}

// New opens a pgxpool against databaseURL and wraps it with a Transactor.
// It retries the initial connection, since the database container may
// still be starting when the process does.
func New(databaseURL string, opts ...Option) (*Postgres, error) {
	o := &options{
		maxPoolSize:       10,
		connTimeout:       defaultConnTimeout,
		healthCheckPeriod: time.Minute,
		isolation:         pgx.ReadCommitted,
	}
	for _, apply := range opts {
		apply(o)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	poolCfg.MaxConns = o.maxPoolSize
	poolCfg.HealthCheckPeriod = o.healthCheckPeriod

	var pool *pgxpool.Pool
	var lastErr error
	for attempt := 1; attempt <= defaultConnAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), o.connTimeout)
		pool, lastErr = pgxpool.NewWithConfig(ctx, poolCfg)
		cancel()
		if lastErr == nil {
			if pingErr := pool.Ping(context.Background()); pingErr == nil {
				break
			} else {
				lastErr = pingErr
			}
		}
		time.Sleep(o.connTimeout)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("database: connect after %d attempts: %w", defaultConnAttempts, lastErr)
	}

	transactor, dbGetter := tx.NewTransactor(pool)

	return &Postgres{Pool: pool, DBGetter: dbGetter, Transactor: transactor}, nil
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
