package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// ExecutionAdapter persists workflow executions through the
// workflow_executions resource.
type ExecutionAdapter struct {
	adapter[models.WorkflowExecution]
}

// NewExecutionAdapter creates an execution adapter over the shared
// client.
func NewExecutionAdapter(client *Client, logger *logging.Logger) *ExecutionAdapter {
	return &ExecutionAdapter{adapter[models.WorkflowExecution]{
		client: client,
		logger: logger,
		meta: restMeta[models.WorkflowExecution]{
			table: "workflow_executions",
			columns: []string{
				"id", "workflow_id", "external_workflow_id", "external_run_id",
				"status", "input_data", "output_data", "error_message",
				"started_at", "completed_at", "created_by", "created_at", "updated_at",
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
		},
	}}
}

// GetByExternalWorkflowID returns the execution tracked under the given
// external engine workflow id, or nil.
func (a *ExecutionAdapter) GetByExternalWorkflowID(ctx context.Context, externalWorkflowID string) (out *models.WorkflowExecution, err error) {
	op := a.op("get_by_external_workflow_id")
	defer func() { a.done(ctx, "get_by_external_workflow_id", err) }()
	return a.getOne(ctx, op, url.Values{"external_workflow_id": {"eq." + externalWorkflowID}})
}

// ListByWorkflow returns the executions of one definition, newest first.
func (a *ExecutionAdapter) ListByWorkflow(ctx context.Context, workflowID string) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_workflow")
	defer func() { a.done(ctx, "list_by_workflow", err) }()
	return a.getMany(ctx, op, url.Values{
		"workflow_id": {"eq." + workflowID},
		"order":       {"created_at.desc"},
	})
}

// ListByUser returns the executions started by the given user, newest
// first.
func (a *ExecutionAdapter) ListByUser(ctx context.Context, userID string) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_user")
	defer func() { a.done(ctx, "list_by_user", err) }()
	return a.getMany(ctx, op, url.Values{
		"created_by": {"eq." + userID},
		"order":      {"created_at.desc"},
	})
}

// ListByStatus returns the executions currently in the given state,
// newest first.
func (a *ExecutionAdapter) ListByStatus(ctx context.Context, status models.ExecutionStatus) (out []*models.WorkflowExecution, err error) {
	op := a.op("list_by_status")
	defer func() { a.done(ctx, "list_by_status", err) }()
	return a.getMany(ctx, op, url.Values{
		"status": {"eq." + string(status)},
		"order":  {"created_at.desc"},
	})
}
