package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// BuildMCPTool converts a ToolDescriptor into an mcp.Tool with the
// appropriate input schema.
func BuildMCPTool(d ToolDescriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, p := range d.Params {
		opts = append(opts, buildParamOption(p))
	}
	return mcp.NewTool(d.Name, opts...)
}

// buildParamOption maps a Param to the appropriate mcp-go tool option.
func buildParamOption(p Param) mcp.ToolOption {
	var opts []mcp.PropertyOption
	if p.Description != "" {
		opts = append(opts, mcp.Description(p.Description))
	}
	if p.Required {
		opts = append(opts, mcp.Required())
	}

	switch p.Type {
	case TypeNumber:
		return mcp.WithNumber(p.Name, opts...)
	case TypeBoolean:
		return mcp.WithBoolean(p.Name, opts...)
	default:
		// string and date are both passed as strings
		return mcp.WithString(p.Name, opts...)
	}
}

// ToolHandler creates a handler that routes an MCP tool call through the
// dispatcher. Failures become protocol-level error results, never Go errors;
// a transport that sees an error would drop the session.
func ToolHandler(d *Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := d.Dispatch(ctx, ToolCall{Name: name, Arguments: r.GetArguments()})
		if !result.OK {
			return errorResult(fmt.Sprintf("Error (%s): %s", result.Kind, result.Message)), nil
		}
		return textResult(string(result.Payload)), nil
	}
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(s)}}
}

func errorResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(s)},
		IsError: true,
	}
}
