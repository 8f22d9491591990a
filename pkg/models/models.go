// Package models defines the domain records persisted by the workflow
// platform. The same structs travel through both storage backends: the
// db tags name relational columns, the json tags name the REST payload
// fields, and the two sets are deliberately identical.
package models

import (
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// ExecutionStatus represents the state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// StepStatus represents the state of a single step within an execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ApprovalStatus represents the state of a human approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// LogLevel represents the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarning  LogLevel = "warning"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// Tag limits for workflow definitions.
const (
	MaxTags      = 20
	MaxTagLength = 50
)

// UserProfile is the platform-side profile of a user. Authentication
// secrets are never stored here; the identity provider owns credentials
// and the profile is looked up (or provisioned) by the email claim.
// Preferences is an open key/value map owned by callers.
type UserProfile struct {
	ID          string         `json:"id" db:"id"`
	Username    string         `json:"username" db:"username"`
	DisplayName *string        `json:"display_name,omitempty" db:"display_name"`
	AvatarURL   *string        `json:"avatar_url,omitempty" db:"avatar_url"`
	Timezone    string         `json:"timezone" db:"timezone"`
	Preferences map[string]any `json:"preferences" db:"preferences"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// WorkflowDefinition is one immutable version of a workflow. The pair
// (Name, Version) is unique; a new version is a new row. CreatedBy is a
// weak reference: deleting the user nulls it, never the definition.
type WorkflowDefinition struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Description  *string        `json:"description,omitempty" db:"description"`
	YAMLContent  string         `json:"yaml_content" db:"yaml_content"`
	ParsedConfig map[string]any `json:"parsed_config" db:"parsed_config"`
	Version      int            `json:"version" db:"version"`
	Status       WorkflowStatus `json:"status" db:"status"`
	Tags         []string       `json:"tags" db:"tags"`
	CreatedBy    *string        `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks the definition-level constraints that both storage
// backends enforce before writing.
func (w *WorkflowDefinition) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if w.YAMLContent == "" {
		return fmt.Errorf("workflow yaml_content is required")
	}
	if w.Version < 1 {
		return fmt.Errorf("workflow version must be >= 1, got %d", w.Version)
	}
	if len(w.Tags) > MaxTags {
		return fmt.Errorf("at most %d tags are allowed, got %d", MaxTags, len(w.Tags))
	}
	for _, tag := range w.Tags {
		if len(tag) > MaxTagLength {
			return fmt.Errorf("tag %q exceeds %d characters", tag, MaxTagLength)
		}
	}
	return nil
}

// WorkflowExecution is one run of a workflow definition, tracked against
// the external execution engine through ExternalWorkflowID/ExternalRunID.
// Deleting the definition cascades to its executions; deleting an
// execution cascades to its steps, approvals and logs.
type WorkflowExecution struct {
	ID                 string          `json:"id" db:"id"`
	WorkflowID         string          `json:"workflow_id" db:"workflow_id"`
	ExternalWorkflowID string          `json:"external_workflow_id" db:"external_workflow_id"`
	ExternalRunID      string          `json:"external_run_id" db:"external_run_id"`
	Status             ExecutionStatus `json:"status" db:"status"`
	InputData          map[string]any  `json:"input_data" db:"input_data"`
	OutputData         map[string]any  `json:"output_data" db:"output_data"`
	ErrorMessage       *string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt          *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedBy          *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// StepExecution is one step within a workflow execution. (ExecutionID,
// StepID) is unique. CostInfo is an open map for provider billing data.
type StepExecution struct {
	ID           string         `json:"id" db:"id"`
	ExecutionID  string         `json:"execution_id" db:"execution_id"`
	StepID       string         `json:"step_id" db:"step_id"`
	StepName     string         `json:"step_name" db:"step_name"`
	StepType     string         `json:"step_type" db:"step_type"`
	Status       StepStatus     `json:"status" db:"status"`
	InputData    map[string]any `json:"input_data" db:"input_data"`
	OutputData   map[string]any `json:"output_data" db:"output_data"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	CostInfo     map[string]any `json:"cost_info" db:"cost_info"`
	StartedAt    *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// ApprovalRequest is a human gate inside an execution. ApprovalToken is
// the unique capability used to respond without a session. RequestedBy
// and ApprovedBy are weak references to user profiles.
type ApprovalRequest struct {
	ID            string         `json:"id" db:"id"`
	ExecutionID   string         `json:"execution_id" db:"execution_id"`
	StepID        string         `json:"step_id" db:"step_id"`
	Title         string         `json:"title" db:"title"`
	Description   *string        `json:"description,omitempty" db:"description"`
	ContextData   map[string]any `json:"context_data" db:"context_data"`
	Status        ApprovalStatus `json:"status" db:"status"`
	ApprovalToken string         `json:"approval_token" db:"approval_token"`
	RequestedBy   *string        `json:"requested_by,omitempty" db:"requested_by"`
	ApprovedBy    *string        `json:"approved_by,omitempty" db:"approved_by"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	RespondedAt   *time.Time     `json:"responded_at,omitempty" db:"responded_at"`
	ResponseNote  *string        `json:"response_note,omitempty" db:"response_note"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// ExecutionLog is an append-only log line attached to an execution and
// optionally to one of its steps. Metadata is an open key/value map.
type ExecutionLog struct {
	ID          string         `json:"id" db:"id"`
	ExecutionID string         `json:"execution_id" db:"execution_id"`
	StepID      *string        `json:"step_id,omitempty" db:"step_id"`
	Level       LogLevel       `json:"level" db:"level"`
	Message     string         `json:"message" db:"message"`
	Metadata    map[string]any `json:"metadata" db:"metadata"`
	Timestamp   time.Time      `json:"timestamp" db:"timestamp"`
}
