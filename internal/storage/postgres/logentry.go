package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// LogAdapter persists execution log lines in the execution_logs table.
// Logs are append-only in practice: callers create and list, and the
// table carries a bare timestamp instead of created/updated pairs.
type LogAdapter struct {
	adapter[models.ExecutionLog]
}

// NewLogAdapter creates an execution log adapter over the shared
// client.
func NewLogAdapter(client *Client, logger *logging.Logger) *LogAdapter {
	return &LogAdapter{adapter[models.ExecutionLog]{
		client: client,
		logger: logger,
		meta: tableMeta[models.ExecutionLog]{
			table: "execution_logs",
			columns: []string{
				"id", "execution_id", "step_id", "level", "message",
				"metadata", "timestamp",
			},
			selectExprs: []string{
				"id::text", "execution_id::text", "step_id", "level", "message",
				"metadata", "timestamp",
			},
			scan: func(row rowScanner) (*models.ExecutionLog, error) {
				var l models.ExecutionLog
				err := row.Scan(
					&l.ID, &l.ExecutionID, &l.StepID, &l.Level, &l.Message,
					&l.Metadata, &l.Timestamp,
				)
				if err != nil {
					return nil, err
				}
				return &l, nil
			},
			insertArgs: func(l *models.ExecutionLog) []any {
				return []any{
					l.ID, l.ExecutionID, l.StepID, l.Level, l.Message,
					l.Metadata, l.Timestamp,
				}
			},
			prepare: func(l *models.ExecutionLog) {
				if l.ID == "" {
					l.ID = uuid.New().String()
				}
				if l.Level == "" {
					l.Level = models.LogLevelInfo
				}
				if l.Metadata == nil {
					l.Metadata = map[string]any{}
				}
				if l.Timestamp.IsZero() {
					l.Timestamp = time.Now().UTC()
				}
			},
			hasUpdated: false,
		},
	}}
}

// ListByExecution returns the logs of an execution in timestamp order,
// narrowed by the optional level and time-range filters.
func (a *LogAdapter) ListByExecution(ctx context.Context, executionID string, q storage.LogQuery) (out []*models.ExecutionLog, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()

	conds := []string{"execution_id = $1"}
	args := []any{executionID}
	if q.Level != "" {
		args = append(args, string(q.Level))
		conds = append(conds, fmt.Sprintf("level = $%d", len(args)))
	}
	if q.Start != nil {
		args = append(args, *q.Start)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if q.End != nil {
		args = append(args, *q.End)
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	sql := "SELECT " + a.meta.selectList() + " FROM execution_logs WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY timestamp ASC"
	return a.queryMany(ctx, op, sql, args...)
}

// ListByStep returns the logs attached to one step of an execution in
// timestamp order, narrowed by the optional level filter.
func (a *LogAdapter) ListByStep(ctx context.Context, executionID, stepID string, level models.LogLevel) (out []*models.ExecutionLog, err error) {
	op := a.op("list_by_step")
	defer func() { a.done(ctx, "list_by_step", err) }()

	conds := []string{"execution_id = $1", "step_id = $2"}
	args := []any{executionID, stepID}
	if level != "" {
		args = append(args, string(level))
		conds = append(conds, fmt.Sprintf("level = $%d", len(args)))
	}

	sql := "SELECT " + a.meta.selectList() + " FROM execution_logs WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY timestamp ASC"
	return a.queryMany(ctx, op, sql, args...)
}
