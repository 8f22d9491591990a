package supabase

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// WorkflowAdapter persists workflow definitions through the
// workflow_definitions resource.
type WorkflowAdapter struct {
	adapter[models.WorkflowDefinition]
}

// NewWorkflowAdapter creates a workflow definition adapter over the
// shared client.
func NewWorkflowAdapter(client *Client, logger *logging.Logger) *WorkflowAdapter {
	return &WorkflowAdapter{adapter[models.WorkflowDefinition]{
		client: client,
		logger: logger,
		meta: restMeta[models.WorkflowDefinition]{
			table: "workflow_definitions",
			columns: []string{
				"id", "name", "description", "yaml_content", "parsed_config",
				"version", "status", "tags", "created_by", "created_at", "updated_at",
			},
			prepare: func(w *models.WorkflowDefinition) {
				if w.ID == "" {
					w.ID = uuid.New().String()
				}
				if w.Status == "" {
					w.Status = models.WorkflowStatusDraft
				}
				if w.ParsedConfig == nil {
					w.ParsedConfig = map[string]any{}
				}
				if w.Tags == nil {
					w.Tags = []string{}
				}
				now := time.Now().UTC()
				if w.CreatedAt.IsZero() {
					w.CreatedAt = now
				}
				w.UpdatedAt = now
			},
			validate: func(w *models.WorkflowDefinition) error {
				return w.Validate()
			},
		},
	}}
}

// GetByNameAndVersion returns the definition stored under the unique
// (name, version) pair, or nil.
func (a *WorkflowAdapter) GetByNameAndVersion(ctx context.Context, name string, version int) (out *models.WorkflowDefinition, err error) {
	op := a.op("get_by_name_and_version")
	defer func() { a.done(ctx, "get_by_name_and_version", err) }()
	return a.getOne(ctx, op, url.Values{
		"name":    {"eq." + name},
		"version": {"eq." + strconv.Itoa(version)},
	})
}

// GetLatestVersion returns the highest stored version of the named
// workflow, or nil when no version exists.
func (a *WorkflowAdapter) GetLatestVersion(ctx context.Context, name string) (out *models.WorkflowDefinition, err error) {
	op := a.op("get_latest_version")
	defer func() { a.done(ctx, "get_latest_version", err) }()
	return a.getOne(ctx, op, url.Values{
		"name":  {"eq." + name},
		"order": {"version.desc"},
	})
}

// ListByUser returns the definitions created by the given user, newest
// first.
func (a *WorkflowAdapter) ListByUser(ctx context.Context, userID string) (out []*models.WorkflowDefinition, err error) {
	op := a.op("list_by_user")
	defer func() { a.done(ctx, "list_by_user", err) }()
	return a.getMany(ctx, op, url.Values{
		"created_by": {"eq." + userID},
		"order":      {"created_at.desc"},
	})
}

// ListByTags returns the definitions whose tag set shares at least one
// tag with the given set, using the array overlap operator.
func (a *WorkflowAdapter) ListByTags(ctx context.Context, tags []string) (out []*models.WorkflowDefinition, err error) {
	op := a.op("list_by_tags")
	defer func() { a.done(ctx, "list_by_tags", err) }()
	return a.getMany(ctx, op, url.Values{
		"tags":  {"ov.{" + strings.Join(tags, ",") + "}"},
		"order": {"created_at.desc"},
	})
}
