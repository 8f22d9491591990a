// Package services holds the business operations built on top of the
// storage adapters. Services never talk to a backend directly; they go
// through the adapter contract so both backend families behave the
// same.
package services

import (
	"context"
	"fmt"

	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// WorkflowService manages workflow definitions and their versions.
type WorkflowService struct {
	workflows storage.WorkflowAdapter
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(workflows storage.WorkflowAdapter) *WorkflowService {
	return &WorkflowService{workflows: workflows}
}

// Register stores a new definition version. When the named workflow
// already exists the version is the latest plus one; otherwise it
// starts at one. Registration never mutates an existing version.
func (s *WorkflowService) Register(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	latest, err := s.workflows.GetLatestVersion(ctx, def.Name)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		def.Version = 1
	} else {
		def.Version = latest.Version + 1
	}
	return s.workflows.Create(ctx, def)
}

// Get returns a definition by name: the given version, or the latest
// when version is zero.
func (s *WorkflowService) Get(ctx context.Context, name string, version int) (*models.WorkflowDefinition, error) {
	if version == 0 {
		return s.workflows.GetLatestVersion(ctx, name)
	}
	return s.workflows.GetByNameAndVersion(ctx, name, version)
}

// SetStatus moves a definition to the given lifecycle state.
func (s *WorkflowService) SetStatus(ctx context.Context, id string, status models.WorkflowStatus) (*models.WorkflowDefinition, error) {
	return s.workflows.Update(ctx, id, storage.Fields{"status": string(status)})
}

// List returns definitions filtered by the optional status, newest
// first, with pagination.
func (s *WorkflowService) List(ctx context.Context, status models.WorkflowStatus, limit, offset int) ([]*models.WorkflowDefinition, error) {
	opts := storage.ListOptions{
		Limit:   limit,
		Offset:  offset,
		OrderBy: "-created_at",
	}
	if status != "" {
		opts.Filters = storage.Filters{"status": string(status)}
	}
	return s.workflows.List(ctx, opts)
}

// ListByTags returns definitions sharing at least one of the given
// tags.
func (s *WorkflowService) ListByTags(ctx context.Context, tags []string) ([]*models.WorkflowDefinition, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one tag is required")
	}
	return s.workflows.ListByTags(ctx, tags)
}
