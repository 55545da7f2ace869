package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ErrorKind classifies a failed tool call for the caller.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindUnknownTool ErrorKind = "unknown_tool"
	KindAuth        ErrorKind = "auth"
	KindRemote4xx   ErrorKind = "remote_4xx"
	KindRemote5xx   ErrorKind = "remote_5xx"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
)

// ToolResult is the outcome of a dispatched tool call. Exactly one of
// Payload (on success) or Kind/Message (on failure) is populated.
type ToolResult struct {
	OK      bool
	Payload json.RawMessage
	Kind    ErrorKind
	Message string
}

// Success wraps a mapped payload.
func Success(payload json.RawMessage) ToolResult {
	return ToolResult{OK: true, Payload: payload}
}

// Failure wraps a classified error.
func Failure(kind ErrorKind, msg string) ToolResult {
	return ToolResult{Kind: kind, Message: msg}
}

// mapResult applies the descriptor's result mapping to a 2xx response body.
// A mapping miss (the remote answered but the expected value is absent)
// is an error: it almost always means the caller supplied an identifier
// the remote does not know.
func mapResult(spec ResultSpec, body []byte) (json.RawMessage, error) {
	switch spec.Mode {
	case ModePluck:
		return pluckValue(spec, body)
	case ModeProject:
		return projectItems(spec, body)
	default:
		if len(body) == 0 || !json.Valid(body) {
			return nil, fmt.Errorf("remote returned a non-JSON response")
		}
		return json.RawMessage(body), nil
	}
}

// pluckValue walks spec.Path through the document; numeric segments index
// arrays. The value is returned wrapped under spec.Key.
func pluckValue(spec ResultSpec, body []byte) (json.RawMessage, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("remote returned a non-JSON response")
	}

	cur := doc
	for _, seg := range spec.Path {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("no value found at %q in remote response", seg)
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("no value found at %q in remote response", seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("no value found at %q in remote response", seg)
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("remote response has no %q value", spec.Path[len(spec.Path)-1])
	}

	return json.Marshal(map[string]interface{}{spec.Key: cur})
}

// projectItems extracts the array at spec.ItemsPath and projects the named
// fields of each item. Items missing any projected field are skipped rather
// than failing the whole result.
func projectItems(spec ResultSpec, body []byte) (json.RawMessage, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("remote returned a non-JSON response")
	}

	raw, ok := doc[spec.ItemsPath]
	if !ok {
		return nil, fmt.Errorf("remote response has no %q array", spec.ItemsPath)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("remote response has no %q array", spec.ItemsPath)
	}

	projected := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		row := make(map[string]interface{}, len(spec.Fields))
		complete := true
		for _, f := range spec.Fields {
			from := f.From
			if from == "" {
				from = f.Name
			}
			val, ok := obj[from]
			if !ok || val == nil {
				complete = false
				break
			}
			if f.DateDMY {
				s, ok := val.(string)
				if !ok {
					complete = false
					break
				}
				val = toDMY(s)
			}
			row[f.Name] = val
		}
		if complete {
			projected = append(projected, row)
		}
	}

	return json.Marshal(map[string]interface{}{spec.Key: projected})
}

// toDMY reformats a YYYY-MM-DD date to DD-MM-YYYY, passing other shapes
// through unchanged.
func toDMY(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("02-01-2006")
}
