package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// tableMeta binds one entity type to its relational table: the column
// set, how a row scans into the struct, and how a struct turns into
// insert arguments. selectExprs casts uuid columns to text so rows scan
// into the string ids the models carry.
type tableMeta[T any] struct {
	table       string
	columns     []string
	selectExprs []string
	scan        func(row rowScanner) (*T, error)
	insertArgs  func(rec *T) []any
	prepare     func(rec *T)
	validate    func(rec *T) error
	hasUpdated  bool
}

func (m *tableMeta[T]) selectList() string {
	return strings.Join(m.selectExprs, ", ")
}

func (m *tableMeta[T]) knownField(name string) bool {
	for _, c := range m.columns {
		if c == name {
			return true
		}
	}
	return false
}

// adapter implements the generic storage contract for one table. Every
// operation runs against the shared pool; the pool scopes a connection
// to each call, so nothing leaks across operations regardless of the
// exit path.
type adapter[T any] struct {
	client *Client
	logger *logging.Logger
	meta   tableMeta[T]
}

func (a *adapter[T]) op(name string) string {
	return "postgres." + a.meta.table + "." + name
}

func (a *adapter[T]) done(ctx context.Context, op string, err error) {
	storage.RecordOperation(ctx, "postgres", a.meta.table, op, err)
}

// Connect delegates to the shared client; the first adapter to connect
// establishes the pool for all of them.
func (a *adapter[T]) Connect(ctx context.Context) error {
	return a.client.Connect(ctx)
}

// Disconnect closes the shared pool.
func (a *adapter[T]) Disconnect(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func (a *adapter[T]) Create(ctx context.Context, rec *T) (out *T, err error) {
	op := a.op("create")
	defer func() { a.done(ctx, "create", err) }()

	if a.meta.validate != nil {
		if verr := a.meta.validate(rec); verr != nil {
			return nil, storage.NewValidationError(op, "%v", verr)
		}
	}
	a.meta.prepare(rec)

	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(a.meta.columns))
	for i := range a.meta.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		a.meta.table,
		strings.Join(a.meta.columns, ", "),
		strings.Join(placeholders, ", "),
		a.meta.selectList(),
	)
	args := a.meta.insertArgs(rec)
	a.client.echo(sql, args)

	out, err = a.meta.scan(pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

func (a *adapter[T]) GetByID(ctx context.Context, id string) (out *T, err error) {
	defer func() { a.done(ctx, "get_by_id", err) }()
	// The id param goes over the wire as text and is cast server side,
	// so a malformed id surfaces as a postgres error we can classify.
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = ($1::text)::uuid", a.meta.selectList(), a.meta.table)
	return a.queryOne(ctx, a.op("get_by_id"), sql, id)
}

func (a *adapter[T]) GetByField(ctx context.Context, field string, value any) (out *T, err error) {
	op := a.op("get_by_field")
	defer func() { a.done(ctx, "get_by_field", err) }()

	if !a.meta.knownField(field) {
		return nil, storage.NewValidationError(op, "unknown field %q on %s", field, a.meta.table)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 LIMIT 1", a.meta.selectList(), a.meta.table, field)
	return a.queryOne(ctx, op, sql, value)
}

func (a *adapter[T]) List(ctx context.Context, opts storage.ListOptions) (out []*T, err error) {
	op := a.op("list")
	defer func() { a.done(ctx, "list", err) }()

	where, args, err := a.whereClause(op, opts.Filters)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", a.meta.selectList(), a.meta.table, where)

	if opts.OrderBy != "" {
		field, desc := storage.ParseOrderBy(opts.OrderBy)
		if !a.meta.knownField(field) {
			return nil, storage.NewValidationError(op, "unknown order_by field %q on %s", field, a.meta.table)
		}
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", field, dir)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	return a.queryMany(ctx, op, b.String(), args...)
}

func (a *adapter[T]) Update(ctx context.Context, id string, fields storage.Fields) (out *T, err error) {
	op := a.op("update")
	defer func() { a.done(ctx, "update", err) }()

	if id == "" {
		return nil, storage.NewValidationError(op, "update requires an id")
	}
	if len(fields) == 0 {
		return nil, storage.NewValidationError(op, "update requires at least one field")
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for _, name := range storage.SortedKeys(fields) {
		if name == "id" || !a.meta.knownField(name) {
			return nil, storage.NewValidationError(op, "unknown or immutable field %q on %s", name, a.meta.table)
		}
		args = append(args, fields[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	if a.meta.hasUpdated {
		if _, ok := fields["updated_at"]; !ok {
			sets = append(sets, "updated_at = now()")
		}
	}
	args = append(args, id)

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = ($%d::text)::uuid RETURNING %s",
		a.meta.table, strings.Join(sets, ", "), len(args), a.meta.selectList(),
	)
	a.client.echo(sql, args)

	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}
	out, err = a.meta.scan(pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NewValidationError(op, "record %s does not exist", id)
		}
		return nil, mapError(op, err)
	}
	return out, nil
}

func (a *adapter[T]) Delete(ctx context.Context, id string) (removed bool, err error) {
	op := a.op("delete")
	defer func() { a.done(ctx, "delete", err) }()

	pool, err := a.client.acquire(op)
	if err != nil {
		return false, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = ($1::text)::uuid", a.meta.table)
	a.client.echo(sql, []any{id})

	tag, err := pool.Exec(ctx, sql, id)
	if err != nil {
		return false, mapError(op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (a *adapter[T]) Count(ctx context.Context, filters storage.Filters) (n int64, err error) {
	op := a.op("count")
	defer func() { a.done(ctx, "count", err) }()

	where, args, err := a.whereClause(op, filters)
	if err != nil {
		return 0, err
	}
	pool, err := a.client.acquire(op)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("SELECT count(*) FROM %s%s", a.meta.table, where)
	a.client.echo(sql, args)

	if err := pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

// ExecuteRaw runs an arbitrary statement and returns the result set as
// generic rows keyed by column name.
func (a *adapter[T]) ExecuteRaw(ctx context.Context, query string, args ...any) (result []map[string]any, err error) {
	op := a.op("execute_raw")
	defer func() { a.done(ctx, "execute_raw", err) }()

	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}
	a.client.echo(query, args)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result = make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(op, err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return result, nil
}

// txHandle wraps an open pgx transaction behind the opaque storage.Tx.
type txHandle struct {
	tx pgx.Tx
}

// BeginTx opens an explicit transactional session. The session is held
// until CommitTx or RollbackTx releases it.
func (a *adapter[T]) BeginTx(ctx context.Context) (storage.Tx, error) {
	op := a.op("begin_tx")
	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &txHandle{tx: tx}, nil
}

// CommitTx finalizes the transaction. The underlying session is
// released whether or not the commit succeeds.
func (a *adapter[T]) CommitTx(ctx context.Context, tx storage.Tx) error {
	op := a.op("commit_tx")
	handle, ok := tx.(*txHandle)
	if !ok || handle == nil {
		return storage.NewValidationError(op, "transaction handle does not belong to this backend")
	}
	if err := handle.tx.Commit(ctx); err != nil {
		_ = handle.tx.Rollback(ctx)
		return mapError(op, err)
	}
	return nil
}

// RollbackTx aborts the transaction and releases its session.
func (a *adapter[T]) RollbackTx(ctx context.Context, tx storage.Tx) error {
	op := a.op("rollback_tx")
	handle, ok := tx.(*txHandle)
	if !ok || handle == nil {
		return storage.NewValidationError(op, "transaction handle does not belong to this backend")
	}
	if err := handle.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapError(op, err)
	}
	return nil
}

// TxExec runs a statement inside an open transaction. It backs the
// callers that group writes (e.g. seeding) into one atomic unit.
func (a *adapter[T]) TxExec(ctx context.Context, tx storage.Tx, sql string, args ...any) error {
	op := a.op("tx_exec")
	handle, ok := tx.(*txHandle)
	if !ok || handle == nil {
		return storage.NewValidationError(op, "transaction handle does not belong to this backend")
	}
	if _, err := handle.tx.Exec(ctx, sql, args...); err != nil {
		return mapError(op, err)
	}
	return nil
}

func (a *adapter[T]) whereClause(op string, filters storage.Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, name := range storage.SortedKeys(filters) {
		if !a.meta.knownField(name) {
			return "", nil, storage.NewValidationError(op, "unknown filter field %q on %s", name, a.meta.table)
		}
		args = append(args, filters[name])
		conds = append(conds, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (a *adapter[T]) queryOne(ctx context.Context, op, sql string, args ...any) (*T, error) {
	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}
	a.client.echo(sql, args)

	rec, err := a.meta.scan(pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}
	return rec, nil
}

func (a *adapter[T]) queryMany(ctx context.Context, op, sql string, args ...any) ([]*T, error) {
	pool, err := a.client.acquire(op)
	if err != nil {
		return nil, err
	}
	a.client.echo(sql, args)

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	out := make([]*T, 0)
	for rows.Next() {
		rec, err := a.meta.scan(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// mapError classifies a postgres failure. Constraint violations and
// malformed values are the caller's mistake; everything else is an
// infrastructure failure.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return storage.NewValidationError(op, "unique constraint violated (%s): %s", pgErr.ConstraintName, pgErr.Message)
		case "23503": // foreign_key_violation
			return storage.NewValidationError(op, "referenced record does not exist: %s", pgErr.Message)
		case "23514": // check_violation
			return storage.NewValidationError(op, "check constraint violated: %s", pgErr.Message)
		case "22P02": // invalid_text_representation
			return storage.NewValidationError(op, "malformed value: %s", pgErr.Message)
		case "42703": // undefined_column
			return storage.NewValidationError(op, "unknown column: %s", pgErr.Message)
		case "42601": // syntax_error, only reachable through ExecuteRaw
			return storage.NewValidationError(op, "malformed query: %s", pgErr.Message)
		}
		return storage.NewDatabaseError(op, "query failed", pgErr)
	}
	return storage.NewDatabaseError(op, "query failed", err)
}
