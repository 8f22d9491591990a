package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// ExecutionAdapter persists workflow executions in the
// workflow_executions table.
type ExecutionAdapter struct {
	adapter[models.WorkflowExecution]
}

// NewExecutionAdapter creates an execution adapter over the shared
// client.
func NewExecutionAdapter(client *Client, logger *logging.Logger) *ExecutionAdapter {
	return &ExecutionAdapter{adapter[models.WorkflowExecution]{
		client: client,
		logger: logger,
		meta: tableMeta[models.WorkflowExecution]{
			table: "workflow_executions",
			columns: []string{
				"id", "workflow_id", "external_workflow_id", "external_run_id",
				"status", "input_data", "output_data", "error_message",
				"started_at", "completed_at", "created_by", "created_at", "updated_at",
			},
			selectExprs: []string{
				"id::text", "workflow_id::text", "external_workflow_id", "external_run_id",
				"status", "input_data", "output_data", "error_message",
				"started_at", "completed_at", "created_by::text", "created_at", "updated_at",
			},
			scan: func(row rowScanner) (*models.WorkflowExecution, error) {
				var e models.WorkflowExecution
				err := row.Scan(
					&e.ID, &e.WorkflowID, &e.ExternalWorkflowID, &e.ExternalRunID,
					&e.Status, &e.InputData, &e.OutputData, &e.ErrorMessage,
					&e.StartedAt, &e.CompletedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
				)
				if err != nil {
					return nil, err
				}
				return &e, nil
			},
			insertArgs: func(e *models.WorkflowExecution) []any {
				return []any{
					e.ID, e.WorkflowID, e.ExternalWorkflowID, e.ExternalRunID,
					e.Status, e.InputData, e.OutputData, e.ErrorMessage,
					e.StartedAt, e.CompletedAt, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
				}
			},
			prepare: func(e *models.WorkflowExecution) {
				if e.ID == "" {
					e.ID = uuid.New().String()
				}
				if e.Status == "" {
					e.Status = models.ExecutionStatusPending
				}
				if e.InputData == nil {
					e.InputData = map[string]any{}
				}
				if e.OutputData == nil {
					e.OutputData = map[string]any{}
				}
				now := time.Now().UTC()
				if e.CreatedAt.IsZero() {
					e.CreatedAt = now
				}
				e.UpdatedAt = now
			},
			hasUpdated: true,
		},
	}}
}

// GetByExternalWorkflowID returns the execution tracked under the given
// external engine workflow id, or nil.
func (a *ExecutionAdapter) GetByExternalWorkflowID(ctx context.Context, externalWorkflowID string) (out *models.WorkflowExecution, err error) {
	op := a.op("get_by_external_workflow_id")
	defer func() { a.done(ctx, "get_by_external_workflow_id", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_executions WHERE external_workflow_id = $1 LIMIT 1"
	return a.queryOne(ctx, op, sql, externalWorkflowID)
}

// ListByWorkflow returns the executions of one definition, newest first.
func (a *ExecutionAdapter) ListByWorkflow(ctx context.Context, workflowID string) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_workflow")
	defer func() { a.done(ctx, "list_by_workflow", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_executions WHERE workflow_id = $1 ORDER BY created_at DESC"
	return a.queryMany(ctx, op, sql, workflowID)
}

// ListByUser returns the executions started by the given user, newest
// first.
func (a *ExecutionAdapter) ListByUser(ctx context.Context, userID string) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_user")
	defer func() { a.done(ctx, "list_by_user", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_executions WHERE created_by = $1 ORDER BY created_at DESC"
	return a.queryMany(ctx, op, sql, userID)
}

// ListByStatus returns the executions currently in the given state,
// newest first.
func (a *ExecutionAdapter) ListByStatus(ctx context.Context, status models.ExecutionStatus) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_status")
	defer func() { a.done(ctx, "list_by_status", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_executions WHERE status = $1 ORDER BY created_at DESC"
	return a.queryMany(ctx, op, sql, string(status))
}
