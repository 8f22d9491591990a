package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// ApprovalAdapter persists human approval requests in the
// approval_requests table.
type ApprovalAdapter struct {
	adapter[models.ApprovalRequest]
}

// NewApprovalAdapter creates an approval request adapter over the
// shared client.
func NewApprovalAdapter(client *Client, logger *logging.Logger) *ApprovalAdapter {
	return &ApprovalAdapter{adapter[models.ApprovalRequest]{
		client: client,
		logger: logger,
		meta: tableMeta[models.ApprovalRequest]{
			table: "approval_requests",
			columns: []string{
				"id", "execution_id", "step_id", "title", "description",
				"context_data", "status", "approval_token", "requested_by",
				"approved_by", "expires_at", "responded_at", "response_note",
				"created_at", "updated_at",
			},
			selectExprs: []string{
				"id::text", "execution_id::text", "step_id", "title", "description",
				"context_data", "status", "approval_token", "requested_by::text",
				"approved_by::text", "expires_at", "responded_at", "response_note",
				"created_at", "updated_at",
			},
			scan: func(row rowScanner) (*models.ApprovalRequest, error) {
				var r models.ApprovalRequest
				err := row.Scan(
					&r.ID, &r.ExecutionID, &r.StepID, &r.Title, &r.Description,
					&r.ContextData, &r.Status, &r.ApprovalToken, &r.RequestedBy,
					&r.ApprovedBy, &r.ExpiresAt, &r.RespondedAt, &r.ResponseNote,
					&r.CreatedAt, &r.UpdatedAt,
				)
				if err != nil {
					return nil, err
				}
				return &r, nil
			},
			insertArgs: func(r *models.ApprovalRequest) []any {
				return []any{
					r.ID, r.ExecutionID, r.StepID, r.Title, r.Description,
					r.ContextData, r.Status, r.ApprovalToken, r.RequestedBy,
					r.ApprovedBy, r.ExpiresAt, r.RespondedAt, r.ResponseNote,
					r.CreatedAt, r.UpdatedAt,
				}
			},
			prepare: func(r *models.ApprovalRequest) {
				if r.ID == "" {
					r.ID = uuid.New().String()
				}
				// The token is the capability used to respond without a
				// session, so every request gets a fresh one.
				if r.ApprovalToken == "" {
					r.ApprovalToken = uuid.New().String()
				}
				if r.Status == "" {
					r.Status = models.ApprovalStatusPending
				}
				if r.ContextData == nil {
					r.ContextData = map[string]any{}
				}
				now := time.Now().UTC()
				if r.CreatedAt.IsZero() {
					r.CreatedAt = now
				}
				r.UpdatedAt = now
			},
			hasUpdated: true,
		},
	}}
}

// GetByToken returns the request addressed by its approval token, or
// nil.
func (a *ApprovalAdapter) GetByToken(ctx context.Context, token string) (out *models.ApprovalRequest, err error) {
	op := a.op("get_by_token")
	defer func() { a.done(ctx, "get_by_token", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM approval_requests WHERE approval_token = $1"
	return a.queryOne(ctx, op, sql, token)
}

// ListPendingByUser returns the still-pending requests addressed to the
// given user, oldest first so the queue drains in order.
func (a *ApprovalAdapter) ListPendingByUser(ctx context.Context, userID string) (out []*models.ApprovalRequest, err error) {
	op := a.op("list_pending_by_user")
	defer func() { a.done(ctx, "list_pending_by_user", err) }()
	sql := "SELECT " + a.meta.selectList() +
		" FROM approval_requests WHERE requested_by = $1 AND status = $2 ORDER BY created_at ASC"
	return a.queryMany(ctx, op, sql, userID, string(models.ApprovalStatusPending))
}

// ListByExecution returns all approval requests of one execution in
// creation order.
func (a *ApprovalAdapter) ListByExecution(ctx context.Context, executionID string) (out []*models.ApprovalRequest, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM approval_requests WHERE execution_id = $1 ORDER BY created_at ASC"
	return a.queryMany(ctx, op, sql, executionID)
}
