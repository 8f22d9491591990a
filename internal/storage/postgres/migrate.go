package postgres

import (
	"context"
	_ "embed"
	"strings"

	"codeweave/backend/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the full schema on the connected database. Every
// statement is idempotent, so running Migrate against an existing
// schema is safe. Statements run one at a time inside a single
// transaction; the extended query protocol does not accept
// multi-statement strings.
func (c *Client) Migrate(ctx context.Context) error {
	const op = "postgres.migrate"

	pool, err := c.acquire(op)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return storage.NewDatabaseError(op, "failed to begin migration transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return storage.NewDatabaseError(op, "migration statement failed", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.NewDatabaseError(op, "failed to commit migration", err)
	}
	c.logger.Info("schema migration applied")
	return nil
}
