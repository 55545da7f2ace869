// Package mcp maps MCP tool calls onto Oracle HCM REST requests.
//
// Tools are data: each ToolDescriptor names an HTTP method, a path template,
// a parameter schema and a response mapping. The dispatcher is generic over
// any registered descriptor: adding a tool means adding a catalog entry,
// not code.
package mcp

import (
	"fmt"
	"strings"
)

// allowedMethods is the whitelist of HTTP methods for tool descriptors.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// ParamIn says where a parameter lands in the outbound request.
type ParamIn string

const (
	// InPath substitutes the value into a {name} placeholder in the path
	// template (query-string placeholders included).
	InPath ParamIn = "path"
	// InQuery appends the value as a query parameter.
	InQuery ParamIn = "query"
	// InBody substitutes the value into the body template.
	InBody ParamIn = "body"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	// TypeDate accepts DD-MM-YYYY from callers and is forwarded to HCM as
	// YYYY-MM-DD.
	TypeDate ParamType = "date"
)

// Param describes one parameter of a tool.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	In          ParamIn
	// Default fills a missing optional value. The sentinel "today"
	// resolves to the current date.
	Default string
	// Uppercase folds the value before use (HCM stores worker numbers
	// uppercased).
	Uppercase bool
}

// ResultMode selects how a 2xx response body becomes a tool result.
type ResultMode string

const (
	// ModePassthrough returns the remote JSON body unchanged.
	ModePassthrough ResultMode = "passthrough"
	// ModeProject extracts a list of items and projects named fields.
	ModeProject ResultMode = "project"
	// ModePluck extracts a single value at a path.
	ModePluck ResultMode = "pluck"
)

// FieldSpec names one projected field. From is the source key in the remote
// item (defaults to Name). DateDMY reformats a YYYY-MM-DD source value to
// DD-MM-YYYY.
type FieldSpec struct {
	Name    string
	From    string
	DateDMY bool
}

// ResultSpec is the declarative response mapping for a tool.
type ResultSpec struct {
	Mode ResultMode
	// ItemsPath locates the source array for ModeProject, e.g. "items".
	ItemsPath string
	Fields    []FieldSpec
	// Path locates the value for ModePluck; numeric segments index arrays.
	Path []string
	// Key wraps the projected list or plucked value in the result object.
	Key string
}

// ToolDescriptor defines one tool: its schema and how calls translate to
// HCM REST requests. Immutable after registration.
type ToolDescriptor struct {
	Name        string
	Description string
	Method      string
	// Path is a template relative to the versioned API root. {param}
	// placeholders are substituted with escaped argument values and may
	// appear in the query string.
	Path   string
	Params []Param
	// BodyTemplate is a JSON document with {param} placeholders. Used by
	// action endpoints that take an ADF payload.
	BodyTemplate string
	// FrameworkVersion attaches the REST-Framework-Version header.
	FrameworkVersion bool
	// TimeoutSeconds overrides the per-attempt timeout.
	TimeoutSeconds int
	Result         ResultSpec
}

// Validate checks a descriptor for registration.
func (d ToolDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if !allowedMethods[strings.ToUpper(d.Method)] {
		return fmt.Errorf("tool %q has unsupported method %q", d.Name, d.Method)
	}
	if !strings.HasPrefix(d.Path, "/") {
		return fmt.Errorf("tool %q has invalid path %q (must start with /)", d.Name, d.Path)
	}
	if strings.Contains(d.Path, "..") {
		return fmt.Errorf("tool %q has invalid path %q (contains ..)", d.Name, d.Path)
	}
	seen := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("tool %q has a parameter with empty name", d.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %q has duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = true
		switch p.In {
		case InPath, InQuery, InBody:
		default:
			return fmt.Errorf("tool %q parameter %q has invalid location %q", d.Name, p.Name, p.In)
		}
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeDate, "":
		default:
			return fmt.Errorf("tool %q parameter %q has invalid type %q", d.Name, p.Name, p.Type)
		}
		if p.In == InPath && !strings.Contains(d.Path, "{"+p.Name+"}") {
			return fmt.Errorf("tool %q parameter %q has no {%s} placeholder in path", d.Name, p.Name, p.Name)
		}
		if p.In == InBody && d.BodyTemplate != "" && !strings.Contains(d.BodyTemplate, "{"+p.Name+"}") {
			return fmt.Errorf("tool %q parameter %q has no {%s} placeholder in body template", d.Name, p.Name, p.Name)
		}
	}
	switch d.Result.Mode {
	case ModePassthrough, "":
	case ModeProject:
		if d.Result.ItemsPath == "" || len(d.Result.Fields) == 0 {
			return fmt.Errorf("tool %q projection needs items path and fields", d.Name)
		}
	case ModePluck:
		if len(d.Result.Path) == 0 {
			return fmt.Errorf("tool %q pluck needs a path", d.Name)
		}
	default:
		return fmt.Errorf("tool %q has invalid result mode %q", d.Name, d.Result.Mode)
	}
	return nil
}
