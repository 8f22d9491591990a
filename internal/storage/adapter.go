// Package storage defines the backend-independent persistence contract
// of the workflow platform: one generic adapter interface, narrow
// per-entity sub-contracts, a shared error taxonomy, and the query
// types both backends translate into their native dialect.
//
// Two implementations exist: internal/storage/postgres (pooled sessions
// against a self-hosted database, real transactions) and
// internal/storage/supabase (stateless PostgREST calls, no native
// transactions). Callers obtain adapters only through the factory
// package and must not assume capabilities beyond this contract.
package storage

import (
	"context"

	"codeweave/backend/pkg/models"
)

// Adapter is the generic CRUD/query/transaction contract over one
// entity type. All operations take a context and honor its deadline.
type Adapter[T any] interface {
	// Connect prepares the backend resources. It is idempotent and must
	// succeed before any other operation.
	Connect(ctx context.Context) error
	// Disconnect releases all backend resources. Idempotent.
	Disconnect(ctx context.Context) error

	// Create stores a new record and returns it with server-populated
	// fields (id when absent, timestamps) filled in. A uniqueness
	// violation is a validation-class error.
	Create(ctx context.Context, rec *T) (*T, error)
	// GetByID returns the record or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*T, error)
	// GetByField returns the first record whose field equals value, or
	// (nil, nil). An unknown field name is a validation-class error.
	GetByField(ctx context.Context, field string, value any) (*T, error)
	// List returns the matching records, possibly empty, never an error
	// for an empty result.
	List(ctx context.Context, opts ListOptions) ([]*T, error)
	// Update applies a partial patch to the record with the given id
	// and returns the stored result. A missing id, a nonexistent
	// record, or an unknown field is a validation-class error.
	Update(ctx context.Context, id string, fields Fields) (*T, error)
	// Delete removes the record and reports whether a row was removed.
	// Deleting a nonexistent id returns (false, nil).
	Delete(ctx context.Context, id string) (bool, error)
	// Count returns the total matching cardinality, ignoring pagination.
	Count(ctx context.Context, filters Filters) (int64, error)

	// ExecuteRaw runs a raw query. Capability-gated: backends without
	// raw query support return a not-supported error.
	ExecuteRaw(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	// BeginTx opens a transaction. Capability-gated.
	BeginTx(ctx context.Context) (Tx, error)
	// CommitTx finalizes a transaction and releases its resources.
	CommitTx(ctx context.Context, tx Tx) error
	// RollbackTx aborts a transaction and releases its resources.
	RollbackTx(ctx context.Context, tx Tx) error
}

// UserAdapter persists user profiles.
type UserAdapter interface {
	Adapter[models.UserProfile]
	GetByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	// GetByEmail looks the profile up by the email key kept inside the
	// preferences map; see the package documentation for why email is
	// not a first-class column.
	GetByEmail(ctx context.Context, email string) (*models.UserProfile, error)
}

// WorkflowAdapter persists workflow definitions.
type WorkflowAdapter interface {
	Adapter[models.WorkflowDefinition]
	GetByNameAndVersion(ctx context.Context, name string, version int) (*models.WorkflowDefinition, error)
	// GetLatestVersion returns the highest version stored for the name,
	// or (nil, nil) when no version exists.
	GetLatestVersion(ctx context.Context, name string) (*models.WorkflowDefinition, error)
	ListByUser(ctx context.Context, userID string) ([]*models.WorkflowDefinition, error)
	// ListByTags matches definitions whose tag set overlaps the given
	// tags (any shared tag), not tag-set equality.
	ListByTags(ctx context.Context, tags []string) ([]*models.WorkflowDefinition, error)
}

// ExecutionAdapter persists workflow executions.
type ExecutionAdapter interface {
	Adapter[models.WorkflowExecution]
	GetByExternalWorkflowID(ctx context.Context, externalWorkflowID string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	ListByUser(ctx context.Context, userID string) ([]*models.WorkflowExecution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.WorkflowExecution, error)
}

// StepExecutionAdapter persists per-step execution records.
type StepExecutionAdapter interface {
	Adapter[models.StepExecution]
	ListByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error)
	GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error)
}

// ApprovalAdapter persists approval requests.
type ApprovalAdapter interface {
	Adapter[models.ApprovalRequest]
	GetByToken(ctx context.Context, token string) (*models.ApprovalRequest, error)
	ListPendingByUser(ctx context.Context, userID string) ([]*models.ApprovalRequest, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.ApprovalRequest, error)
}

// LogAdapter persists execution logs.
type LogAdapter interface {
	Adapter[models.ExecutionLog]
	// ListByExecution returns the logs of an execution in timestamp
	// order, optionally narrowed by level and time range.
	ListByExecution(ctx context.Context, executionID string, q LogQuery) ([]*models.ExecutionLog, error)
	// ListByStep returns the logs of one step in timestamp order,
	// optionally narrowed by level.
	ListByStep(ctx context.Context, executionID, stepID string, level models.LogLevel) ([]*models.ExecutionLog, error)
}

// Lifecycle is the connect/disconnect surface shared by every adapter,
// independent of its entity type. The factory uses it for bulk
// connect/disconnect over cached adapters.
type Lifecycle interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}
