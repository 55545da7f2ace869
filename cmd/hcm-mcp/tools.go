package main

import (
	"github.com/mark3labs/mcp-go/server"

	hcmmcp "github.com/bobmcallan/hcm-mcp/internal/mcp"
)

// registerTools registers every catalog tool on the server, wiring each to
// the dispatcher.
func registerTools(s *server.MCPServer, registry *hcmmcp.Registry, d *hcmmcp.Dispatcher) {
	for _, desc := range registry.List() {
		s.AddTool(hcmmcp.BuildMCPTool(desc), hcmmcp.ToolHandler(d, desc.Name))
	}
}
