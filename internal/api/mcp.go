package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/njagatron/PEPE-DOT/internal/workorder"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *workorder.Service
}

// NewMCPServer creates an MCP server exposing the work-order records and
// point ledgers to local agents, read-only.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pepedot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pepedot — local floor-plan annotation records: work orders, plan documents, and photo-tagged points."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_work_orders",
			mcp.WithDescription("List all work order names in their stored order."),
		),
		mcpListWorkOrders(deps),
	)

	s.AddTool(
		mcp.NewTool("work_order_summary",
			mcp.WithDescription("Summarize one work order: its documents, active document and page, and point count."),
			mcp.WithString("name", mcp.Description("Work order name"), mcp.Required()),
		),
		mcpWorkOrderSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("list_points",
			mcp.WithDescription("List a work order's annotation points with positions, names, comments, and page references."),
			mcp.WithString("name", mcp.Description("Work order name"), mcp.Required()),
			mcp.WithNumber("document", mcp.Description("Restrict to one document position (default all)")),
			mcp.WithNumber("page", mcp.Description("Restrict to one page (default all)")),
			mcp.WithBoolean("all_sessions", mcp.Description("Include points created by earlier runs (default true)")),
		),
		mcpListPoints(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"pepedot://active",
			"Active Work Order",
			mcp.WithResourceDescription("The currently open work order record as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActive(deps),
	)

	return s
}

func mcpListWorkOrders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := deps.Service.Store().List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list work orders: %v", err)), nil
		}
		if names == nil {
			names = []string{}
		}
		b, err := json.Marshal(names)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal names: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpWorkOrderSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		state, err := deps.Service.Store().State(name)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load %q: %v", name, err)), nil
		}

		b, err := json.Marshal(viewOf(name, state))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListPoints(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		filter := workorder.PointFilter{
			DocumentIndex: req.GetInt("document", -1),
			Page:          req.GetInt("page", 0),
			AllSessions:   req.GetBool("all_sessions", true),
		}

		records, err := deps.Service.Points(name, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list points: %v", err)), nil
		}

		views := make([]pointView, len(records))
		for i, rec := range records {
			views[i] = pointViewOf(rec)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal points: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceActive(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		name, err := deps.Service.Store().Active()
		if err != nil {
			return nil, fmt.Errorf("failed to read active work order: %w", err)
		}
		if name == "" {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "application/json",
					Text:     "null",
				},
			}, nil
		}

		state, err := deps.Service.Store().State(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %q: %w", name, err)
		}

		view := struct {
			stateView
			LoadedAt string `json:"loaded_at"`
		}{viewOf(name, state), time.Now().UTC().Format(time.RFC3339)}

		b, err := json.Marshal(view)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal state: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
