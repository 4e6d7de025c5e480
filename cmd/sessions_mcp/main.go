// Package main runs the sessions MCP server over stdio, backed by the REST API of a running service.
// The same MCP server is also mounted on the service itself at /mcp.
package main

import (
	"context"
	"flag"

	"github.com/2beens/repcounter/internal/sessions"
	sessionsmcp "github.com/2beens/repcounter/internal/sessions/mcp"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"
)

func main() {
	serverURL := flag.String("server", "http://localhost:9000", "base URL of the repcounter service")
	maxRetries := flag.Uint64("max-retries", sessions.DefaultClientMaxRetries, "retries of failed sessions API calls")
	flag.Parse()

	client := sessions.NewClient(*serverURL, nil, *maxRetries)
	server := sessionsmcp.NewServer(client)

	// stdout belongs to the MCP transport, logrus writes to stderr by default
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal(err)
	}
}
