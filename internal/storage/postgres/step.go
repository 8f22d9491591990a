package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// StepAdapter persists per-step execution records in the
// step_executions table.
type StepAdapter struct {
	adapter[models.StepExecution]
}

// NewStepAdapter creates a step execution adapter over the shared
// client.
func NewStepAdapter(client *Client, logger *logging.Logger) *StepAdapter {
	return &StepAdapter{adapter[models.StepExecution]{
		client: client,
		logger: logger,
		meta: tableMeta[models.StepExecution]{
			table: "step_executions",
			columns: []string{
				"id", "execution_id", "step_id", "step_name", "step_type",
				"status", "input_data", "output_data", "error_message", "cost_info",
				"started_at", "completed_at", "created_at", "updated_at",
			},
			selectExprs: []string{
				"id::text", "execution_id::text", "step_id", "step_name", "step_type",
				"status", "input_data", "output_data", "error_message", "cost_info",
				"started_at", "completed_at", "created_at", "updated_at",
			},
			scan: func(row rowScanner) (*models.StepExecution, error) {
				var s models.StepExecution
				err := row.Scan(
					&s.ID, &s.ExecutionID, &s.StepID, &s.StepName, &s.StepType,
					&s.Status, &s.InputData, &s.OutputData, &s.ErrorMessage, &s.CostInfo,
					&s.StartedAt, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
				)
				if err != nil {
					return nil, err
				}
				return &s, nil
			},
			insertArgs: func(s *models.StepExecution) []any {
				return []any{
					s.ID, s.ExecutionID, s.StepID, s.StepName, s.StepType,
					s.Status, s.InputData, s.OutputData, s.ErrorMessage, s.CostInfo,
					s.StartedAt, s.CompletedAt, s.CreatedAt, s.UpdatedAt,
				}
			},
			prepare: func(s *models.StepExecution) {
				if s.ID == "" {
					s.ID = uuid.New().String()
				}
				if s.Status == "" {
					s.Status = models.StepStatusPending
				}
				if s.InputData == nil {
					s.InputData = map[string]any{}
				}
				if s.OutputData == nil {
					s.OutputData = map[string]any{}
				}
				if s.CostInfo == nil {
					s.CostInfo = map[string]any{}
				}
				now := time.Now().UTC()
				if s.CreatedAt.IsZero() {
					s.CreatedAt = now
				}
				s.UpdatedAt = now
			},
			hasUpdated: true,
		},
	}}
}

// ListByExecution returns the steps of an execution in creation order.
func (a *StepAdapter) ListByExecution(ctx context.Context, executionID string) (out []*models.StepExecution, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM step_executions WHERE execution_id = $1 ORDER BY created_at ASC"
	return a.queryMany(ctx, op, sql, executionID)
}

// GetByExecutionAndStep returns the record stored under the unique
// (execution_id, step_id) pair, or nil.
func (a *StepAdapter) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (out *models.StepExecution, err error) {
	op := a.op("get_by_execution_and_step")
	defer func() { a.done(ctx, "get_by_execution_and_step", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM step_executions WHERE execution_id = $1 AND step_id = $2"
	return a.queryOne(ctx, op, sql, executionID, stepID)
}
