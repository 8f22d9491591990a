// Package postgres implements the storage adapter contract against a
// self-hosted PostgreSQL database. All adapters share one bounded
// connection pool; every operation checks a connection out of the pool
// for the duration of a single call and releases it on every exit path.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
)

// Default pool bounds, applied when the configuration leaves them unset.
const (
	defaultMaxConns = 10
	defaultMinConns = 2
)

// Client owns the connection pool shared by every postgres adapter the
// factory constructs. Connect and Disconnect are idempotent; adapters
// delegate their lifecycle calls here.
type Client struct {
	cfg    config.PostgresConfig
	logger *logging.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewClient creates a client for the given configuration. No connection
// is made until Connect.
func NewClient(cfg config.PostgresConfig, logger *logging.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Connect establishes the bounded pool and verifies liveness with a
// ping. Calling Connect on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}
	if c.cfg.DSN == "" {
		return storage.NewConfigurationError("postgres.connect", "postgres dsn is not configured")
	}

	poolConfig, err := pgxpool.ParseConfig(c.cfg.DSN)
	if err != nil {
		// The parse error can echo the DSN, which may carry a password.
		return storage.NewDatabaseError("postgres.connect", "failed to parse pool configuration", fmt.Errorf("invalid dsn"))
	}
	poolConfig.MaxConns = c.cfg.MaxConns
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = defaultMaxConns
	}
	poolConfig.MinConns = c.cfg.MinConns
	if poolConfig.MinConns <= 0 {
		poolConfig.MinConns = defaultMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return storage.NewDatabaseError("postgres.connect", "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return storage.NewDatabaseError("postgres.connect", "failed to ping database", err)
	}

	c.pool = pool
	c.logger.Info("postgres backend connected", "max_conns", poolConfig.MaxConns)
	return nil
}

// Disconnect closes the pool and releases every connection. Calling
// Disconnect on a disconnected client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		return nil
	}
	c.pool.Close()
	c.pool = nil
	c.logger.Info("postgres backend disconnected")
	return nil
}

// acquire returns the pool for one operation. The pool itself scopes a
// connection to each query call, so callers never hold connections
// across operations.
func (c *Client) acquire(op string) (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		return nil, storage.NewDatabaseError(op, "backend is not connected", nil)
	}
	return c.pool, nil
}

func (c *Client) echo(sql string, args []any) {
	if c.cfg.Debug {
		c.logger.Debug("executing statement", "sql", sql, "args", len(args))
	}
}
