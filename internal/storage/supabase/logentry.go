package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// LogAdapter persists execution log lines through the execution_logs
// resource.
type LogAdapter struct {
	adapter[models.ExecutionLog]
}

// NewLogAdapter creates an execution log adapter over the shared
// client.
func NewLogAdapter(client *Client, logger *logging.Logger) *LogAdapter {
	return &LogAdapter{adapter[models.ExecutionLog]{
		client: client,
		logger: logger,
		meta: restMeta[models.ExecutionLog]{
			table: "execution_logs",
			columns: []string{
				"id", "execution_id", "step_id", "level", "message",
				"metadata", "timestamp",
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
		},
	}}
}

// ListByExecution returns the logs of an execution in timestamp order,
// narrowed by the optional level and time-range filters.
func (a *LogAdapter) ListByExecution(ctx context.Context, executionID string, q storage.LogQuery) (out []*models.ExecutionLog, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()

	query := url.Values{
		"execution_id": {"eq." + executionID},
		"order":        {"timestamp.asc"},
	}
	if q.Level != "" {
		query.Set("level", "eq."+string(q.Level))
	}
	// Both bounds can apply to the same column, so they are added as
	// separate query entries rather than Set.
	if q.Start != nil {
		query.Add("timestamp", "gte."+q.Start.UTC().Format(time.RFC3339Nano))
	}
	if q.End != nil {
		query.Add("timestamp", "lte."+q.End.UTC().Format(time.RFC3339Nano))
	}
	return a.getMany(ctx, op, query)
}

// ListByStep returns the logs attached to one step of an execution in
// timestamp order, narrowed by the optional level filter.
func (a *LogAdapter) ListByStep(ctx context.Context, executionID, stepID string, level models.LogLevel) (out []*models.ExecutionLog, err error) {
	op := a.op("list_by_step")
	defer func() { a.done(ctx, "list_by_step", err) }()

	query := url.Values{
		"execution_id": {"eq." + executionID},
		"step_id":      {"eq." + stepID},
		"order":        {"timestamp.asc"},
	}
	if level != "" {
		query.Set("level", "eq."+string(level))
	}
	return a.getMany(ctx, op, query)
}
