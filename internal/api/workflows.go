// Package api contains the HTTP handlers for the platform service
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"codeweave/backend/internal/auth"
	"codeweave/backend/internal/services"
	"codeweave/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Workflows  *services.WorkflowService
	Executions *services.ExecutionService
}

// NewServer creates a new Server.
func NewServer(workflows *services.WorkflowService, executions *services.ExecutionService) *Server {
	return &Server{Workflows: workflows, Executions: executions}
}

// RegisterRoutes mounts the workflow and execution endpoints on the
// given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/workflows", s.RegisterWorkflow)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/:name", s.GetWorkflow)
	g.PATCH("/workflows/:id/status", s.SetWorkflowStatus)

	g.POST("/executions", s.StartExecution)
	g.GET("/executions", s.ListExecutions)
	g.GET("/executions/:id", s.GetExecution)
	g.PATCH("/executions/:id/status", s.SetExecutionStatus)
	g.GET("/executions/:id/logs", s.ListExecutionLogs)
	g.POST("/executions/:id/logs", s.AppendExecutionLog)

	g.POST("/approvals/:token/respond", s.RespondToApproval)
	g.GET("/approvals/pending", s.ListPendingApprovals)
}

// RegisterWorkflow stores a new workflow definition version
// (POST /api/v1/workflows)
func (s *Server) RegisterWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var def models.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	if userID, ok := userID(c); ok {
		def.CreatedBy = &userID
	}

	created, err := s.Workflows.Register(ctx, &def)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), "Failed to register workflow: "+err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// ListWorkflows returns workflow definitions, filtered by status or tags
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	if tags := c.QueryParam("tags"); tags != "" {
		defs, err := s.Workflows.ListByTags(ctx, strings.Split(tags, ","))
		if err != nil {
			return echo.NewHTTPError(statusFor(err), err.Error())
		}
		return c.JSON(http.StatusOK, defs)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	defs, err := s.Workflows.List(ctx, models.WorkflowStatus(c.QueryParam("status")), limit, offset)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, defs)
}

// GetWorkflow returns one definition by name: the latest version, or the
// one named by the version query parameter
// (GET /api/v1/workflows/:name)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	version, _ := strconv.Atoi(c.QueryParam("version"))
	def, err := s.Workflows.Get(ctx, c.Param("name"), version)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	if def == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	}
	return c.JSON(http.StatusOK, def)
}

// SetWorkflowStatus moves a definition to a new lifecycle state
// (PATCH /api/v1/workflows/:id/status)
func (s *Server) SetWorkflowStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var body struct {
		Status models.WorkflowStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	def, err := s.Workflows.SetStatus(ctx, c.Param("id"), body.Status)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, def)
}

// userID extracts the authenticated user's profile id from the request
// context.
func userID(c echo.Context) (string, bool) {
	id, ok := c.Request().Context().Value(auth.ContextUserID).(string)
	return id, ok && id != ""
}
