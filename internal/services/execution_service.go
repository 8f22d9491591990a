package services

import (
	"context"
	"fmt"
	"time"

	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// ExecutionService manages workflow runs: their step records, human
// approval gates and log stream.
type ExecutionService struct {
	workflows  storage.WorkflowAdapter
	executions storage.ExecutionAdapter
	steps      storage.StepExecutionAdapter
	approvals  storage.ApprovalAdapter
	logs       storage.LogAdapter
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(
	workflows storage.WorkflowAdapter,
	executions storage.ExecutionAdapter,
	steps storage.StepExecutionAdapter,
	approvals storage.ApprovalAdapter,
	logs storage.LogAdapter,
) *ExecutionService {
	return &ExecutionService{
		workflows:  workflows,
		executions: executions,
		steps:      steps,
		approvals:  approvals,
		logs:       logs,
	}
}

// Start creates a pending execution of an active definition and writes
// the opening log line.
func (s *ExecutionService) Start(ctx context.Context, workflowID, externalWorkflowID, externalRunID string, input map[string]any, userID *string) (*models.WorkflowExecution, error) {
	def, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("workflow %s does not exist", workflowID)
	}
	if def.Status != models.WorkflowStatusActive {
		return nil, fmt.Errorf("workflow %s is %s, only active workflows can run", def.Name, def.Status)
	}

	exec, err := s.executions.Create(ctx, &models.WorkflowExecution{
		WorkflowID:         workflowID,
		ExternalWorkflowID: externalWorkflowID,
		ExternalRunID:      externalRunID,
		Status:             models.ExecutionStatusPending,
		InputData:          input,
		CreatedBy:          userID,
	})
	if err != nil {
		return nil, err
	}

	_, err = s.logs.Create(ctx, &models.ExecutionLog{
		ExecutionID: exec.ID,
		Level:       models.LogLevelInfo,
		Message:     "execution created",
		Metadata:    map[string]any{"workflow": def.Name, "version": def.Version},
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Transition moves an execution to a new status, stamping started_at
// and completed_at as the run crosses those states.
func (s *ExecutionService) Transition(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage *string) (*models.WorkflowExecution, error) {
	fields := storage.Fields{"status": string(status)}
	now := time.Now().UTC()
	switch status {
	case models.ExecutionStatusRunning:
		fields["started_at"] = now
	case models.ExecutionStatusCompleted, models.ExecutionStatusFailed, models.ExecutionStatusCancelled:
		fields["completed_at"] = now
	}
	if errorMessage != nil {
		fields["error_message"] = *errorMessage
	}
	return s.executions.Update(ctx, executionID, fields)
}

// RecordStep stores the record of one step starting within an
// execution.
func (s *ExecutionService) RecordStep(ctx context.Context, step *models.StepExecution) (*models.StepExecution, error) {
	now := time.Now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now
	return s.steps.Create(ctx, step)
}

// CompleteStep finishes a step with its output or failure.
func (s *ExecutionService) CompleteStep(ctx context.Context, stepExecutionID string, status models.StepStatus, output map[string]any, errorMessage *string) (*models.StepExecution, error) {
	fields := storage.Fields{
		"status":       string(status),
		"completed_at": time.Now().UTC(),
	}
	if output != nil {
		fields["output_data"] = output
	}
	if errorMessage != nil {
		fields["error_message"] = *errorMessage
	}
	return s.steps.Update(ctx, stepExecutionID, fields)
}

// RequestApproval opens a human gate for a step. The stored request
// carries a fresh token the approver uses to respond.
func (s *ExecutionService) RequestApproval(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	req.Status = models.ApprovalStatusPending
	return s.approvals.Create(ctx, req)
}

// RespondToApproval resolves a pending request addressed by its token.
// A request past its expiry is marked expired instead of resolved.
func (s *ExecutionService) RespondToApproval(ctx context.Context, token string, approved bool, approverID *string, note *string) (*models.ApprovalRequest, error) {
	req, err := s.approvals.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("approval token is not recognized")
	}
	if req.Status != models.ApprovalStatusPending {
		return nil, fmt.Errorf("approval request is already %s", req.Status)
	}

	now := time.Now().UTC()
	if req.ExpiresAt != nil && req.ExpiresAt.Before(now) {
		return s.approvals.Update(ctx, req.ID, storage.Fields{
			"status":       string(models.ApprovalStatusExpired),
			"responded_at": now,
		})
	}

	status := models.ApprovalStatusRejected
	if approved {
		status = models.ApprovalStatusApproved
	}
	fields := storage.Fields{
		"status":       string(status),
		"responded_at": now,
	}
	if approverID != nil {
		fields["approved_by"] = *approverID
	}
	if note != nil {
		fields["response_note"] = *note
	}
	return s.approvals.Update(ctx, req.ID, fields)
}

// FindByExternalWorkflowID returns the execution tracked under the
// external engine's workflow id, or nil.
func (s *ExecutionService) FindByExternalWorkflowID(ctx context.Context, externalWorkflowID string) (*models.WorkflowExecution, error) {
	return s.executions.GetByExternalWorkflowID(ctx, externalWorkflowID)
}

// ListByWorkflow returns the runs of one definition, newest first.
func (s *ExecutionService) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return s.executions.ListByWorkflow(ctx, workflowID)
}

// ListByStatus returns the runs currently in the given state, newest
// first.
func (s *ExecutionService) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	return s.executions.ListByStatus(ctx, status)
}

// PendingApprovals returns the open requests addressed to a user,
// oldest first.
func (s *ExecutionService) PendingApprovals(ctx context.Context, userID string) ([]*models.ApprovalRequest, error) {
	return s.approvals.ListPendingByUser(ctx, userID)
}

// AppendLog attaches a log line to an execution.
func (s *ExecutionService) AppendLog(ctx context.Context, entry *models.ExecutionLog) (*models.ExecutionLog, error) {
	return s.logs.Create(ctx, entry)
}

// Logs returns the log stream of an execution in timestamp order.
func (s *ExecutionService) Logs(ctx context.Context, executionID string, q storage.LogQuery) ([]*models.ExecutionLog, error) {
	return s.logs.ListByExecution(ctx, executionID, q)
}

// Status returns an execution together with its step records.
func (s *ExecutionService) Status(ctx context.Context, executionID string) (*models.WorkflowExecution, []*models.StepExecution, error) {
	exec, err := s.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	if exec == nil {
		return nil, nil, nil
	}
	steps, err := s.steps.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	return exec, steps, nil
}
