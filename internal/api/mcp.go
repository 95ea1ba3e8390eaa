package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

// MCPRoster is the read side of the roster service exposed over MCP.
type MCPRoster interface {
	Tasks() ([]compliance.Task, error)
	Status(id string) (roster.StaffStatus, error)
	Dashboard() (compliance.Dashboard, error)
	Roster(includeArchived bool) ([]roster.StaffStatus, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Roster MCPRoster
}

// NewMCPServer creates an MCP server with the read-only roster tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sswtrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sswtrack: compliance deadlines and checklist status for specified skilled worker staff."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List open compliance tasks across all staff, most urgent first."),
			mcp.WithString("urgency", mcp.Description("Only return tasks of this urgency: critical, warning or normal")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 50)")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("staff_status",
			mcp.WithDescription("Get the derived compliance status of one staff member: phase, days until residence expiry, warnings and next action."),
			mcp.WithString("id", mcp.Description("Staff ID"), mcp.Required()),
		),
		mcpStaffStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("dashboard",
			mcp.WithDescription("Get facility-wide counters: active staff, permits expiring within 90 days, visit-care ready, exiting, and task counts by urgency."),
		),
		mcpDashboard(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"roster://active",
			"Active Roster",
			mcp.WithResourceDescription("Every non-archived staff member with their compliance status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRoster(deps),
	)

	return s
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urgency := compliance.Severity(req.GetString("urgency", ""))
		switch urgency {
		case "", compliance.SeverityCritical, compliance.SeverityWarning, compliance.SeverityNormal:
		default:
			return mcpError(fmt.Sprintf("unknown urgency %q", urgency)), nil
		}

		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}

		tasks, err := deps.Roster.Tasks()
		if err != nil {
			return mcpError(fmt.Sprintf("listing tasks failed: %v", err)), nil
		}

		out := make([]compliance.Task, 0, len(tasks))
		for _, t := range tasks {
			if urgency != "" && t.Urgency != urgency {
				continue
			}
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tasks: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStaffStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		st, err := deps.Roster.Status(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("staff %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("status failed: %v", err)), nil
		}

		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDashboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		d, err := deps.Roster.Dashboard()
		if err != nil {
			return mcpError(fmt.Sprintf("dashboard failed: %v", err)), nil
		}
		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal dashboard: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRoster(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Roster.Roster(false)
		if err != nil {
			return nil, fmt.Errorf("failed to load roster: %w", err)
		}

		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal roster: %w", err)
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
