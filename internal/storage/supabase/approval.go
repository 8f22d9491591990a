package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// ApprovalAdapter persists human approval requests through the
// approval_requests resource.
type ApprovalAdapter struct {
	adapter[models.ApprovalRequest]
}

// NewApprovalAdapter creates an approval request adapter over the
// shared client.
func NewApprovalAdapter(client *Client, logger *logging.Logger) *ApprovalAdapter {
	return &ApprovalAdapter{adapter[models.ApprovalRequest]{
		client: client,
		logger: logger,
		meta: restMeta[models.ApprovalRequest]{
			table: "approval_requests",
			columns: []string{
				"id", "execution_id", "step_id", "title", "description",
				"context_data", "status", "approval_token", "requested_by",
				"approved_by", "expires_at", "responded_at", "response_note",
				"created_at", "updated_at",
			},
			prepare: func(r *models.ApprovalRequest) {
				if r.ID == "" {
					r.ID = uuid.New().String()
				}
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
		},
	}}
}

// GetByToken returns the request addressed by its approval token, or
// nil.
func (a *ApprovalAdapter) GetByToken(ctx context.Context, token string) (out *models.ApprovalRequest, err error) {
	op := a.op("get_by_token")
	defer func() { a.done(ctx, "get_by_token", err) }()
	return a.getOne(ctx, op, url.Values{"approval_token": {"eq." + token}})
}

// ListPendingByUser returns the still-pending requests addressed to the
// given user, oldest first so the queue drains in order.
func (a *ApprovalAdapter) ListPendingByUser(ctx context.Context, userID string) (out []*models.ApprovalRequest, err error) {
	op := a.op("list_pending_by_user")
	defer func() { a.done(ctx, "list_pending_by_user", err) }()
	return a.getMany(ctx, op, url.Values{
		"requested_by": {"eq." + userID},
		"status":       {"eq." + string(models.ApprovalStatusPending)},
		"order":        {"created_at.asc"},
	})
}

// ListByExecution returns all approval requests of one execution in
// creation order.
func (a *ApprovalAdapter) ListByExecution(ctx context.Context, executionID string) (out []*models.ApprovalRequest, err error) {
	op := a.op("list_by_execution")
	defer func() { a.done(ctx, "list_by_execution", err) }()
	return a.getMany(ctx, op, url.Values{
		"execution_id": {"eq." + executionID},
		"order":        {"created_at.asc"},
	})
}
