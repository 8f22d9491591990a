package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// StartExecution creates a pending run of an active workflow
// (POST /api/v1/executions)
func (s *Server) StartExecution(c echo.Context) error {
	ctx := c.Request().Context()

	var body struct {
		WorkflowID         string         `json:"workflow_id"`
		ExternalWorkflowID string         `json:"external_workflow_id"`
		ExternalRunID      string         `json:"external_run_id"`
		InputData          map[string]any `json:"input_data"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	var creator *string
	if id, ok := userID(c); ok {
		creator = &id
	}

	exec, err := s.Executions.Start(ctx, body.WorkflowID, body.ExternalWorkflowID, body.ExternalRunID, body.InputData, creator)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), "Failed to start execution: "+err.Error())
	}
	return c.JSON(http.StatusCreated, exec)
}

// ListExecutions returns executions filtered by external workflow id,
// definition or status
// (GET /api/v1/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()

	if ext := c.QueryParam("external_workflow_id"); ext != "" {
		exec, err := s.Executions.FindByExternalWorkflowID(ctx, ext)
		if err != nil {
			return echo.NewHTTPError(statusFor(err), err.Error())
		}
		if exec == nil {
			return c.JSON(http.StatusOK, []*models.WorkflowExecution{})
		}
		return c.JSON(http.StatusOK, []*models.WorkflowExecution{exec})
	}

	if workflowID := c.QueryParam("workflow_id"); workflowID != "" {
		execs, err := s.Executions.ListByWorkflow(ctx, workflowID)
		if err != nil {
			return echo.NewHTTPError(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, execs)
	}

	status := models.ExecutionStatus(c.QueryParam("status"))
	if status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "One of external_workflow_id, workflow_id or status is required")
	}
	execs, err := s.Executions.ListByStatus(ctx, status)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, execs)
}

// executionStatus is the combined execution view returned by
// GetExecution.
type executionStatus struct {
	Execution *models.WorkflowExecution `json:"execution"`
	Steps     []*models.StepExecution   `json:"steps"`
}

// GetExecution returns an execution with its step records
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()

	exec, steps, err := s.Executions.Status(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	if exec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Execution not found")
	}
	return c.JSON(http.StatusOK, executionStatus{Execution: exec, Steps: steps})
}

// SetExecutionStatus transitions an execution to a new state
// (PATCH /api/v1/executions/:id/status)
func (s *Server) SetExecutionStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var body struct {
		Status       models.ExecutionStatus `json:"status"`
		ErrorMessage *string                `json:"error_message,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	exec, err := s.Executions.Transition(ctx, c.Param("id"), body.Status, body.ErrorMessage)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, exec)
}

// ListExecutionLogs returns the log stream of an execution, optionally
// narrowed by level and time range
// (GET /api/v1/executions/:id/logs)
func (s *Server) ListExecutionLogs(c echo.Context) error {
	ctx := c.Request().Context()

	q := storage.LogQuery{Level: models.LogLevel(c.QueryParam("level"))}
	if raw := c.QueryParam("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid start time: "+err.Error())
		}
		q.Start = &t
	}
	if raw := c.QueryParam("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid end time: "+err.Error())
		}
		q.End = &t
	}

	logs, err := s.Executions.Logs(ctx, c.Param("id"), q)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, logs)
}

// AppendExecutionLog attaches a log line to an execution
// (POST /api/v1/executions/:id/logs)
func (s *Server) AppendExecutionLog(c echo.Context) error {
	ctx := c.Request().Context()

	var entry models.ExecutionLog
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	entry.ExecutionID = c.Param("id")

	created, err := s.Executions.AppendLog(ctx, &entry)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// RespondToApproval resolves a pending approval request by its token
// (POST /api/v1/approvals/:token/respond)
func (s *Server) RespondToApproval(c echo.Context) error {
	ctx := c.Request().Context()

	var body struct {
		Approved bool    `json:"approved"`
		Note     *string `json:"note,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	var approver *string
	if id, ok := userID(c); ok {
		approver = &id
	}

	req, err := s.Executions.RespondToApproval(ctx, c.Param("token"), body.Approved, approver, body.Note)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

// ListPendingApprovals returns the open approval requests addressed to
// the authenticated user
// (GET /api/v1/approvals/pending)
func (s *Server) ListPendingApprovals(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := userID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not found in context")
	}

	reqs, err := s.Executions.PendingApprovals(ctx, id)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, reqs)
}
