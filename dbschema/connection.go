package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver

	"github.com/stokaro/resmigrate/core/platform"
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Driver is platform.PGX (default) or platform.PQ.
	Driver string
	// MaxConns and MinConns size the pgx pool; zero keeps the pgx defaults.
	MaxConns int32
	MinConns int32
}

// DatabaseConnection is an open Client together with its cleanup.
type DatabaseConnection struct {
	Client
	driver string
	close  func()
}

// Driver returns the normalized driver name.
func (c *DatabaseConnection) Driver() string {
	return c.driver
}

// Close releases the underlying pool or *sql.DB.
func (c *DatabaseConnection) Close() {
	if c.close != nil {
		c.close()
	}
}

// Connect opens a connection to databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*DatabaseConnection, error) {
	switch driver := platform.NormalizeDriver(opts.Driver); driver {
	case platform.PGX:
		pool, err := newPool(ctx, databaseURL, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return &DatabaseConnection{Client: NewPgxClient(pool), driver: driver, close: pool.Close}, nil
	case platform.PQ:
		db, err := sql.Open("postgres", removePostgresPoolParams(databaseURL))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if opts.MaxConns > 0 {
			db.SetMaxOpenConns(int(opts.MaxConns))
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &DatabaseConnection{Client: NewSQLClient(db), driver: driver, close: func() { _ = db.Close() }}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", opts.Driver)
	}
}

func newPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// removePostgresPoolParams drops the pgxpool-only query parameters, which lib/pq
// rejects as unknown runtime settings.
func removePostgresPoolParams(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.RawQuery == "" {
		return databaseURL
	}
	q := u.Query()
	for _, p := range []string{"pool_max_conns", "pool_min_conns", "pool_max_conn_lifetime", "pool_max_conn_idle_time", "pool_health_check_period"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
