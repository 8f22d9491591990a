package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// WorkflowAdapter persists workflow definitions in the
// workflow_definitions table.
type WorkflowAdapter struct {
	adapter[models.WorkflowDefinition]
}

// NewWorkflowAdapter creates a workflow definition adapter over the
// shared client.
func NewWorkflowAdapter(client *Client, logger *logging.Logger) *WorkflowAdapter {
	return &WorkflowAdapter{adapter[models.WorkflowDefinition]{
		client: client,
		logger: logger,
		meta: tableMeta[models.WorkflowDefinition]{
			table: "workflow_definitions",
			columns: []string{
				"id", "name", "description", "yaml_content", "parsed_config",
				"version", "status", "tags", "created_by", "created_at", "updated_at",
			},
			selectExprs: []string{
				"id::text", "name", "description", "yaml_content", "parsed_config",
				"version", "status", "tags", "created_by::text", "created_at", "updated_at",
			},
			scan: func(row rowScanner) (*models.WorkflowDefinition, error) {
				var w models.WorkflowDefinition
				err := row.Scan(
					&w.ID, &w.Name, &w.Description, &w.YAMLContent, &w.ParsedConfig,
					&w.Version, &w.Status, &w.Tags, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt,
				)
				if err != nil {
					return nil, err
				}
				return &w, nil
			},
			insertArgs: func(w *models.WorkflowDefinition) []any {
				return []any{
					w.ID, w.Name, w.Description, w.YAMLContent, w.ParsedConfig,
					w.Version, w.Status, w.Tags, w.CreatedBy, w.CreatedAt, w.UpdatedAt,
				}
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
			hasUpdated: true,
		},
	}}
}

// GetByNameAndVersion returns the definition stored under the unique
// (name, version) pair, or nil.
func (a *WorkflowAdapter) GetByNameAndVersion(ctx context.Context, name string, version int) (out *models.WorkflowDefinition, err error) {
	op := a.op("get_by_name_and_version")
	defer func() { a.done(ctx, "get_by_name_and_version", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_definitions WHERE name = $1 AND version = $2"
	return a.queryOne(ctx, op, sql, name, version)
}

// GetLatestVersion returns the highest stored version of the named
// workflow, or nil when no version exists.
func (a *WorkflowAdapter) GetLatestVersion(ctx context.Context, name string) (out *models.WorkflowDefinition, err error) {
	op := a.op("get_latest_version")
	defer func() { a.done(ctx, "get_latest_version", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_definitions WHERE name = $1 ORDER BY version DESC LIMIT 1"
	return a.queryOne(ctx, op, sql, name)
}

// ListByUser returns the definitions created by the given user, newest
// first.
func (a *WorkflowAdapter) ListByUser(ctx context.Context, userID string) (out []*models.WorkflowDefinition, err error) {
	op := a.op("list_by_user")
	defer func() { a.done(ctx, "list_by_user", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_definitions WHERE created_by = $1 ORDER BY created_at DESC"
	return a.queryMany(ctx, op, sql, userID)
}

// ListByTags returns the definitions whose tag set shares at least one
// tag with the given set.
func (a *WorkflowAdapter) ListByTags(ctx context.Context, tags []string) (out []*models.WorkflowDefinition, err error) {
	op := a.op("list_by_tags")
	defer func() { a.done(ctx, "list_by_tags", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM workflow_definitions WHERE tags && $1::text[] ORDER BY created_at DESC"
	return a.queryMany(ctx, op, sql, tags)
}
