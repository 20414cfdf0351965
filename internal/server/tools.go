package server

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"tradegate/internal/session"
)

// mcpToolRegistry adapts the MCP server's per-session tool registration to
// the session package's ToolRegistry. Tools registered this way are only
// visible to the session they belong to.
type mcpToolRegistry struct {
	srv *mcpserver.MCPServer
}

// RegisterTools implements session.ToolRegistry.
func (r *mcpToolRegistry) RegisterTools(sessionID string, tools []mcpserver.ServerTool) error {
	return r.srv.AddSessionTools(sessionID, tools...)
}

var _ session.ToolRegistry = (*mcpToolRegistry)(nil)
