// Package mcp serves a toolbox over the Model Context Protocol so other
// agents and editors can call the assistant's cluster operations and run
// coordinator turns.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/logging"
)

// Server wraps an mcp-go server exposing a tools.Registry.
type Server struct {
	mcpServer *server.MCPServer
	toolbox   *tools.Registry
	version   string
	logger    *logging.Logger
}

// NewServer registers every tool of toolbox plus the built-in prompts.
func NewServer(version string, toolbox *tools.Registry) (*Server, error) {
	mcpServer := server.NewMCPServer(
		"SRE Assistant MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		toolbox:   toolbox,
		version:   version,
		logger:    logging.GetLogger("mcp"),
	}
	for _, tool := range toolbox.List() {
		if err := s.registerTool(tool); err != nil {
			return nil, err
		}
	}
	s.registerPrompts()
	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout until stdin closes. Logs must go to
// stderr while this runs.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving %d tools over stdio", s.toolbox.Len())
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTool(tool tools.Tool) error {
	schema := tool.InputSchema()
	if schema == nil {
		schema = tools.ObjectSchema(map[string]interface{}{})
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for tool %s: %w", tool.Name(), err)
	}
	s.mcpServer.AddTool(mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schemaJSON), s.createToolHandler(tool.Name()))
	return nil
}

func (s *Server) createToolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result := s.toolbox.Execute(ctx, name, args)
		if !result.Success {
			return mcp.NewToolResultError(result.Content()), nil
		}

		if text, ok := result.Data.(string); ok {
			return mcp.NewToolResultText(text), nil
		}
		resultJSON, err := json.MarshalIndent(result.Data, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.Prompt{
		Name:        "triage_pod",
		Description: "Triage a misbehaving pod from its status, logs and events",
		Arguments: []mcp.PromptArgument{
			{Name: "pod_name", Description: "Name of the pod", Required: true},
			{Name: "namespace", Description: "Optional Kubernetes namespace (default: default)", Required: false},
		},
	}, s.triagePodPrompt)

	s.mcpServer.AddPrompt(mcp.Prompt{
		Name:        "cost_review",
		Description: "Review cloud spend for a period and point out the largest drivers",
		Arguments: []mcp.PromptArgument{
			{Name: "period", Description: "Time period, e.g. 'last month'", Required: true},
			{Name: "service", Description: "Optional service to focus on", Required: false},
		},
	}, s.costReviewPrompt)
}

func (s *Server) triagePodPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pod := request.Params.Arguments["pod_name"]
	if pod == "" {
		return nil, fmt.Errorf("pod_name is required")
	}
	namespace := request.Params.Arguments["namespace"]
	if namespace == "" {
		namespace = "default"
	}

	text := fmt.Sprintf("Check the status of pod %s in namespace %s, then read its recent logs and the events of the namespace. "+
		"Summarize what is wrong and suggest the next step.", pod, namespace)
	return userPrompt("Pod triage workflow", text), nil
}

func (s *Server) costReviewPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	period := request.Params.Arguments["period"]
	if period == "" {
		return nil, fmt.Errorf("period is required")
	}

	text := fmt.Sprintf("What are my AWS costs for %s?", period)
	if service := request.Params.Arguments["service"]; service != "" {
		text += fmt.Sprintf(" Break down the cost of %s and compare it with the previous period.", service)
	} else {
		text += " Which services cost the most?"
	}
	return userPrompt("Cost review workflow", text), nil
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
