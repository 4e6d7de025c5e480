package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2beens/repcounter/internal/sessions"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type sessionsLister interface {
	List(ctx context.Context) ([]sessions.Session, error)
	ListByDay(ctx context.Context, day time.Time) ([]sessions.Session, error)
}

// Handler handles MCP tool requests: parses input, calls the sessions store, formats the MCP result.
type Handler struct {
	lister sessionsLister
	now    func() time.Time
}

func NewHandler(lister sessionsLister) *Handler {
	return &Handler{
		lister: lister,
		now:    time.Now,
	}
}

// ListSessionsInput is the input for list_sessions.
type ListSessionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max number of most recent sessions to return (0 = all)"`
}

// ListSessionsTool returns the MCP tool handler for list_sessions.
func (h *Handler) ListSessionsTool() func(context.Context, *mcp.CallToolRequest, ListSessionsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ListSessionsInput) (*mcp.CallToolResult, any, error) {
		list, err := h.lister.List(ctx)
		if err != nil {
			return errorResult("Error listing sessions: " + err.Error()), nil, nil
		}
		if in.Limit > 0 && len(list) > in.Limit {
			list = list[:in.Limit]
		}
		return jsonResult(list), nil, nil
	}
}

// DayInput is the input for list_sessions_for_day and daily_report.
type DayInput struct {
	Date string `json:"date,omitempty" jsonschema:"Day (YYYY-MM-DD), defaults to today"`
}

// ListSessionsForDayTool returns the MCP tool handler for list_sessions_for_day.
func (h *Handler) ListSessionsForDayTool() func(context.Context, *mcp.CallToolRequest, DayInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in DayInput) (*mcp.CallToolResult, any, error) {
		day, ok := h.parseDay(in.Date)
		if !ok {
			return errorResult("Invalid date: use YYYY-MM-DD"), nil, nil
		}
		list, err := h.lister.ListByDay(ctx, day)
		if err != nil {
			return errorResult("Error listing sessions: " + err.Error()), nil, nil
		}
		return jsonResult(list), nil, nil
	}
}

// DailyReportTool returns the MCP tool handler for daily_report.
func (h *Handler) DailyReportTool() func(context.Context, *mcp.CallToolRequest, DayInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in DayInput) (*mcp.CallToolResult, any, error) {
		day, ok := h.parseDay(in.Date)
		if !ok {
			return errorResult("Invalid date: use YYYY-MM-DD"), nil, nil
		}
		list, err := h.lister.ListByDay(ctx, day)
		if err != nil {
			return errorResult("Error building daily report: " + err.Error()), nil, nil
		}
		return jsonResult(sessions.NewDailyReport(day, list)), nil, nil
	}
}

func (h *Handler) parseDay(date string) (time.Time, bool) {
	now := h.now()
	if date == "" {
		return now, true
	}
	day, err := time.ParseInLocation(time.DateOnly, date, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Error encoding response: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}
}
