package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"codeweave/backend/internal/services"
)

type Server struct {
	mcpServer        *server.MCPServer
	workflowService  *services.WorkflowService
	executionService *services.ExecutionService
}

func NewServer(workflowService *services.WorkflowService, executionService *services.ExecutionService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"CodeWeave Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflowService:  workflowService,
		executionService: executionService,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get the latest version of a workflow definition by name"),
			mcp.WithString("name", mcp.Required(), mcp.Description("The workflow name")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution_status",
			mcp.WithDescription("Get an execution together with its step records"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
		),
		s.handleGetExecutionStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_pending_approvals",
			mcp.WithDescription("List the open approval requests addressed to a user"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The ID of the user")),
		),
		s.handleListPendingApprovals,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"respond_to_approval",
			mcp.WithDescription("Approve or reject a pending approval request by its token"),
			mcp.WithString("token", mcp.Required(), mcp.Description("The approval token")),
			mcp.WithBoolean("approved", mcp.Required(), mcp.Description("Whether the request is approved")),
		),
		s.handleRespondToApproval,
	)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}

	def, err := s.workflowService.Get(ctx, name, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}
	if def == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %q not found", name)), nil
	}

	jsonBytes, _ := json.Marshal(def)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetExecutionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	executionID, ok := args["execution_id"].(string)
	if !ok || executionID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	exec, steps, err := s.executionService.Status(ctx, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get execution status: %v", err)), nil
	}
	if exec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Execution %q not found", executionID)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"execution": exec,
		"steps":     steps,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListPendingApprovals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}

	reqs, err := s.executionService.PendingApprovals(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list approvals: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(reqs)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRespondToApproval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	token, ok := args["token"].(string)
	if !ok || token == "" {
		return mcp.NewToolResultError("Missing required parameter: token"), nil
	}

	approved, ok := args["approved"].(bool)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: approved"), nil
	}

	req, err := s.executionService.RespondToApproval(ctx, token, approved, nil, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to respond to approval: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(req)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
