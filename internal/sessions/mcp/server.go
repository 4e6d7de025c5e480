package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server with read-only workout session tools.
// Mounted on the main service at /mcp, and served over stdio by cmd/sessions_mcp.
func NewServer(lister sessionsLister) *mcp.Server {
	h := NewHandler(lister)
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "repcounter-sessions",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Returns recorded workout sessions (id, exerciseName, reps, timestamp), newest first. Optional: limit.",
	}, h.ListSessionsTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_sessions_for_day",
		Description: "Returns the workout sessions recorded on a day. Arg: date (YYYY-MM-DD), defaults to today.",
	}, h.ListSessionsForDayTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "daily_report",
		Description: "Returns the total reps and the sessions of a day. Arg: date (YYYY-MM-DD), defaults to today.",
	}, h.DailyReportTool())

	return s
}
