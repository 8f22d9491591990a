package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
)

// restMeta binds one entity type to its REST resource: the filterable
// column set and the client-side preparation both backends share.
// PostgREST applies server defaults, but ids and timestamps are
// populated before the request so created records are identical across
// backends.
type restMeta[T any] struct {
	table    string
	columns  []string
	prepare  func(rec *T)
	validate func(rec *T) error
}

func (m *restMeta[T]) knownField(name string) bool {
	for _, c := range m.columns {
		if c == name {
			return true
		}
	}
	return false
}

// adapter implements the generic storage contract for one REST
// resource. Every operation is a single stateless request.
type adapter[T any] struct {
	client *Client
	logger *logging.Logger
	meta   restMeta[T]
}

func (a *adapter[T]) op(name string) string {
	return "supabase." + a.meta.table + "." + name
}

func (a *adapter[T]) done(ctx context.Context, op string, err error) {
	storage.RecordOperation(ctx, "supabase", a.meta.table, op, err)
}

// Connect delegates to the shared client; the first adapter to connect
// probes the endpoint for all of them.
func (a *adapter[T]) Connect(ctx context.Context) error {
	return a.client.Connect(ctx)
}

// Disconnect drops the shared client's idle connections.
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

	resp, err := a.client.do(ctx, op, http.MethodPost, a.meta.table, nil, rec, "return=representation")
	if err != nil {
		return nil, err
	}
	rows, err := a.decodeRows(op, resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.NewDatabaseError(op, "insert returned no representation", nil)
	}
	return rows[0], nil
}

func (a *adapter[T]) GetByID(ctx context.Context, id string) (out *T, err error) {
	defer func() { a.done(ctx, "get_by_id", err) }()
	return a.getOne(ctx, a.op("get_by_id"), url.Values{"id": {"eq." + id}})
}

func (a *adapter[T]) GetByField(ctx context.Context, field string, value any) (out *T, err error) {
	op := a.op("get_by_field")
	defer func() { a.done(ctx, "get_by_field", err) }()

	if !a.meta.knownField(field) {
		return nil, storage.NewValidationError(op, "unknown field %q on %s", field, a.meta.table)
	}
	return a.getOne(ctx, op, url.Values{field: {"eq." + formatValue(value)}})
}

func (a *adapter[T]) List(ctx context.Context, opts storage.ListOptions) (out []*T, err error) {
	op := a.op("list")
	defer func() { a.done(ctx, "list", err) }()

	query := url.Values{}
	for _, name := range storage.SortedKeys(opts.Filters) {
		if !a.meta.knownField(name) {
			return nil, storage.NewValidationError(op, "unknown filter field %q on %s", name, a.meta.table)
		}
		query.Set(name, "eq."+formatValue(opts.Filters[name]))
	}
	if opts.OrderBy != "" {
		field, desc := storage.ParseOrderBy(opts.OrderBy)
		if !a.meta.knownField(field) {
			return nil, storage.NewValidationError(op, "unknown order_by field %q on %s", field, a.meta.table)
		}
		dir := ".asc"
		if desc {
			dir = ".desc"
		}
		query.Set("order", field+dir)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	return a.getMany(ctx, op, query)
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
	patch := make(map[string]any, len(fields)+1)
	for _, name := range storage.SortedKeys(fields) {
		if name == "id" || !a.meta.knownField(name) {
			return nil, storage.NewValidationError(op, "unknown or immutable field %q on %s", name, a.meta.table)
		}
		patch[name] = fields[name]
	}
	if a.meta.knownField("updated_at") {
		if _, ok := patch["updated_at"]; !ok {
			patch["updated_at"] = time.Now().UTC()
		}
	}

	query := url.Values{"id": {"eq." + id}}
	resp, err := a.client.do(ctx, op, http.MethodPatch, a.meta.table, query, patch, "return=representation")
	if err != nil {
		return nil, err
	}
	rows, err := a.decodeRows(op, resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.NewValidationError(op, "record %s does not exist", id)
	}
	return rows[0], nil
}

func (a *adapter[T]) Delete(ctx context.Context, id string) (removed bool, err error) {
	op := a.op("delete")
	defer func() { a.done(ctx, "delete", err) }()

	query := url.Values{"id": {"eq." + id}}
	resp, err := a.client.do(ctx, op, http.MethodDelete, a.meta.table, query, nil, "return=representation")
	if err != nil {
		return false, err
	}
	rows, err := a.decodeRows(op, resp)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Count asks PostgREST for the exact cardinality through the
// Content-Range header instead of fetching rows.
func (a *adapter[T]) Count(ctx context.Context, filters storage.Filters) (n int64, err error) {
	op := a.op("count")
	defer func() { a.done(ctx, "count", err) }()

	query := url.Values{}
	for _, name := range storage.SortedKeys(filters) {
		if !a.meta.knownField(name) {
			return 0, storage.NewValidationError(op, "unknown filter field %q on %s", name, a.meta.table)
		}
		query.Set(name, "eq."+formatValue(filters[name]))
	}
	query.Set("select", "id")
	query.Set("limit", "1")

	resp, err := a.client.do(ctx, op, http.MethodGet, a.meta.table, query, nil, "count=exact")
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	if err := a.checkStatus(op, resp); err != nil {
		return 0, err
	}

	contentRange := resp.Header.Get("Content-Range")
	slash := strings.LastIndex(contentRange, "/")
	if slash < 0 {
		return 0, storage.NewDatabaseError(op, "response is missing the Content-Range total", nil)
	}
	total, perr := strconv.ParseInt(contentRange[slash+1:], 10, 64)
	if perr != nil {
		return 0, storage.NewDatabaseError(op, "failed to parse the Content-Range total", perr)
	}
	return total, nil
}

// ExecuteRaw is not available over the REST surface.
func (a *adapter[T]) ExecuteRaw(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	err := storage.NewNotSupportedError(a.op("execute_raw"), "supabase")
	a.done(ctx, "execute_raw", err)
	return nil, err
}

// BeginTx is not available: each REST call commits independently and
// there is no session to scope a transaction to.
func (a *adapter[T]) BeginTx(ctx context.Context) (storage.Tx, error) {
	err := storage.NewNotSupportedError(a.op("begin_tx"), "supabase")
	a.done(ctx, "begin_tx", err)
	return nil, err
}

// CommitTx is not available; see BeginTx.
func (a *adapter[T]) CommitTx(ctx context.Context, tx storage.Tx) error {
	err := storage.NewNotSupportedError(a.op("commit_tx"), "supabase")
	a.done(ctx, "commit_tx", err)
	return err
}

// RollbackTx is not available; see BeginTx.
func (a *adapter[T]) RollbackTx(ctx context.Context, tx storage.Tx) error {
	err := storage.NewNotSupportedError(a.op("rollback_tx"), "supabase")
	a.done(ctx, "rollback_tx", err)
	return err
}

func (a *adapter[T]) getOne(ctx context.Context, op string, query url.Values) (*T, error) {
	query.Set("limit", "1")
	rows, err := a.getMany(ctx, op, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (a *adapter[T]) getMany(ctx context.Context, op string, query url.Values) ([]*T, error) {
	resp, err := a.client.do(ctx, op, http.MethodGet, a.meta.table, query, nil, "")
	if err != nil {
		return nil, err
	}
	return a.decodeRows(op, resp)
}

func (a *adapter[T]) decodeRows(op string, resp *http.Response) ([]*T, error) {
	defer drain(resp)
	if err := a.checkStatus(op, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return []*T{}, nil
	}
	var rows []*T
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, storage.NewDatabaseError(op, "failed to decode response body", err)
	}
	return rows, nil
}

// restError is the JSON error shape PostgREST returns; Code carries the
// underlying postgres SQLSTATE when the database rejected the request.
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// checkStatus classifies an error response. Constraint violations
// surface as validation errors just like on the relational backend.
func (a *adapter[T]) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var re restError
	if json.Unmarshal(body, &re) == nil && re.Message != "" {
		switch re.Code {
		case "23505":
			return storage.NewValidationError(op, "unique constraint violated: %s", re.Message)
		case "23503":
			return storage.NewValidationError(op, "referenced record does not exist: %s", re.Message)
		case "23514":
			return storage.NewValidationError(op, "check constraint violated: %s", re.Message)
		case "22P02":
			return storage.NewValidationError(op, "malformed value: %s", re.Message)
		case "42703", "PGRST204":
			return storage.NewValidationError(op, "unknown column: %s", re.Message)
		}
		return storage.NewDatabaseError(op,
			fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, re.Message), nil)
	}
	return storage.NewDatabaseError(op,
		fmt.Sprintf("request failed with status %d", resp.StatusCode), nil)
}

// formatValue renders a filter value into PostgREST operand syntax.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// drain consumes and closes the response body so the connection can be
// reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
