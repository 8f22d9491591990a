package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// StepAdapter persists per-step execution records through the
// step_executions resource.
type StepAdapter struct {
	adapter[models.StepExecution]
}

// NewStepAdapter creates a step execution adapter over the shared
// client.
func NewStepAdapter(client *Client, logger *logging.Logger) *StepAdapter {
	return &StepAdapter{adapter[models.StepExecution]{
		client: client,
		logger: logger,
		meta: restMeta[models.StepExecution]{
			table: "step_executions",
			columns: []string{
				"id", "execution_id", "step_id", "step_name", "step_type",
				"status", "input_data", "output_data", "error_message", "cost_info",
				"started_at", "completed_at", "created_at", "updated_at",
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
		},
	}}
}

// ListByExecution returns the steps of an execution in creation order.
func (a *StepAdapter) ListByExecution(ctx context.Context, executionID string) (out []*models.StepExecution, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()
	return a.getMany(ctx, op, url.Values{
		"execution_id": {"eq." + executionID},
		"order":        {"created_at.asc"},
	})
}

// GetByExecutionAndStep returns the record stored under the unique
// (execution_id, step_id) pair, or nil.
func (a *StepAdapter) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (out *models.StepExecution, err error) {
	op := a.op("get_by_execution_and_step")
	defer func() { a.done(ctx, "get_by_execution_and_step", err) }()
	return a.getOne(ctx, op, url.Values{
		"execution_id": {"eq." + executionID},
		"step_id":      {"eq." + stepID},
	})
}
