package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/applytrack/internal/jobs"
	"github.com/kalambet/applytrack/internal/storage"
	"github.com/kalambet/applytrack/internal/tracker"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Jobs      *jobs.Service
	Reminders ReminderLister
}

// NewMCPServer creates an MCP server with the job tracking tools and the
// board resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"applytrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("applytrack: job application tracker with status timelines and follow-up reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List tracked job applications, newest first."),
			mcp.WithString("status", mcp.Description("Filter by status: saved, applied, interviewing, rejected, offered or none")),
			mcp.WithString("query", mcp.Description("Substring matched against title, company and location")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("job_timeline",
			mcp.WithDescription("Show the status timeline of a job application, newest first."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
		),
		mcpJobTimeline(deps),
	)

	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Append a free-text note to a job's timeline."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Note text"), mcp.Required()),
		),
		mcpAddNote(deps),
	)

	s.AddTool(
		mcp.NewTool("move_job",
			mcp.WithDescription("Move a job to another board column, recording the matching timeline event."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
			mcp.WithString("column", mcp.Description("Target column: saved, applied, interviewing, rejected or offered"), mcp.Required()),
		),
		mcpMoveJob(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List follow-up reminders ordered by trigger date."),
			mcp.WithBoolean("include_sent", mcp.Description("Include reminders already delivered")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListReminders(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://board",
			"Job Board",
			mcp.WithResourceDescription("Board columns with the jobs in each, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBoard(deps),
	)

	return s
}

func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := storage.JobFilter{
			Query: req.GetString("query", ""),
			Limit: clampLimit(req.GetInt("limit", 20)),
		}
		if raw := req.GetString("status", ""); raw != "" {
			if raw == "none" {
				raw = ""
			}
			st, err := tracker.ParseStatus(raw)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			f.Status = &st
		}

		list, err := deps.Jobs.List(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("listing jobs failed: %v", err)), nil
		}

		type jobSummary struct {
			ID      string         `json:"id"`
			Title   string         `json:"title"`
			Company string         `json:"company"`
			Status  tracker.Status `json:"status,omitempty"`
			Events  int            `json:"events"`
		}
		out := make([]jobSummary, len(list))
		for i, j := range list {
			out[i] = jobSummary{ID: j.ID, Title: j.Title, Company: j.Company, Status: j.Status, Events: len(j.StatusEvents)}
		}
		return mcpJSON(out)
	}
}

func mcpJobTimeline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		events, err := deps.Jobs.Timeline(ctx, id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading timeline failed: %v", err)), nil
		}

		type entry struct {
			Label string `json:"label"`
			Date  string `json:"date"`
			Notes string `json:"notes,omitempty"`
		}
		out := make([]entry, len(events))
		for i, e := range events {
			out[i] = entry{Label: tracker.Label(e.Type), Date: e.Date.Format("2006-01-02 15:04"), Notes: e.Notes}
		}
		return mcpJSON(out)
	}
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		job, err := deps.Jobs.AddNote(ctx, id, text)
		if err != nil {
			return mcpError(fmt.Sprintf("adding note failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added note to %s at %s", job.Title, job.Company)), nil
	}
}

func mcpMoveJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		col, err := req.RequireString("column")
		if err != nil {
			return mcpError("column is required"), nil
		}
		target := tracker.Column(col)
		if _, ok := tracker.StatusForColumn(target); !ok {
			return mcpError(fmt.Sprintf("unknown column %q", col)), nil
		}

		job, err := deps.Jobs.Get(ctx, id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading job failed: %v", err)), nil
		}
		from, _ := tracker.ColumnForStatus(job.Status)

		res, err := deps.Jobs.Move(ctx, tracker.DragResult{
			DraggableID: id,
			Source:      tracker.Position{Column: from},
			Destination: &tracker.Position{Column: target},
		})
		if err != nil {
			return mcpError(fmt.Sprintf("move failed: %v", err)), nil
		}
		if res.Event == nil {
			return mcpText(fmt.Sprintf("%s is already in %s", job.Title, target)), nil
		}
		return mcpText(fmt.Sprintf("Moved %s to %s: %s", job.Title, target, tracker.Label(res.Event.Type))), nil
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Reminders.ListReminders(ctx, req.GetBool("include_sent", false), clampLimit(req.GetInt("limit", 20)))
		if err != nil {
			return mcpError(fmt.Sprintf("listing reminders failed: %v", err)), nil
		}

		type reminderSummary struct {
			ID      string `json:"id"`
			JobID   string `json:"job_id"`
			Due     string `json:"due"`
			Subject string `json:"subject"`
			Sent    bool   `json:"sent"`
		}
		out := make([]reminderSummary, len(list))
		for i, e := range list {
			out[i] = reminderSummary{ID: e.ID, JobID: e.JobID, Due: e.TriggerDate.Format("2006-01-02"), Subject: e.Subject, Sent: e.Sent}
		}
		return mcpJSON(out)
	}
}

func mcpResourceBoard(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		board, err := deps.Jobs.Board(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load board: %w", err)
		}

		b, err := json.Marshal(board)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal board: %w", err)
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

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
