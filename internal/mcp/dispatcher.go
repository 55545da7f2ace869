package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/hcm-mcp/internal/auth"
	"github.com/bobmcallan/hcm-mcp/internal/common"
	"github.com/bobmcallan/hcm-mcp/internal/hcm"
)

// ToolCall is one incoming tool invocation.
type ToolCall struct {
	Name      string
	Arguments map[string]interface{}
}

// TokenSource supplies the bearer credential; satisfied by auth.Provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Executor performs the outbound HTTP call; satisfied by hcm.Client.
type Executor interface {
	Execute(ctx context.Context, spec hcm.RequestSpec) (*hcm.Response, error)
}

// Dispatcher turns tool calls into HCM requests and back into results.
//
// Each call moves through a fixed sequence: resolve, validate, authenticate,
// request, map. Validation runs before authentication so a malformed call
// never costs a token exchange or a network round trip. Every failure below
// the dispatcher is converted into a ToolResult failure; nothing propagates
// to the protocol layer as a raw error.
type Dispatcher struct {
	registry *Registry
	tokens   TokenSource
	client   Executor
	logger   *common.Logger

	// now is swappable for date-default tests.
	now func() time.Time
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(registry *Registry, tokens TokenSource, client Executor, logger *common.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tokens:   tokens,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch executes one tool call to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) ToolResult {
	logger := d.logger.WithCorrelationId(uuid.NewString()[:8])

	desc, err := d.registry.Resolve(call.Name)
	if err != nil {
		logger.Warn().Str("tool", call.Name).Msg("unknown tool")
		return Failure(KindUnknownTool, err.Error())
	}

	args, err := d.coerceArgs(desc, call.Arguments)
	if err != nil {
		logger.Warn().Str("tool", call.Name).Str("error", err.Error()).Msg("invalid arguments")
		return Failure(KindValidation, err.Error())
	}

	if _, err := d.tokens.Token(ctx); err != nil {
		logger.Error().Str("tool", call.Name).Str("error", common.Redact(err.Error())).Msg("authentication failed")
		return Failure(KindAuth, common.Redact(err.Error()))
	}

	spec, err := buildRequest(desc, args)
	if err != nil {
		return Failure(KindValidation, err.Error())
	}

	logger.Info().Str("tool", call.Name).Str("method", spec.Method).Msg("dispatching tool call")

	resp, err := d.client.Execute(ctx, spec)
	if err != nil {
		kind, msg := classifyExecuteError(err)
		logger.Warn().Str("tool", call.Name).Str("kind", string(kind)).Str("error", msg).Msg("tool call failed")
		return Failure(kind, msg)
	}

	payload, err := mapResult(desc.Result, resp.Body)
	if err != nil {
		logger.Warn().Str("tool", call.Name).Str("error", err.Error()).Msg("response mapping failed")
		return Failure(KindValidation, err.Error())
	}

	return Success(payload)
}

// classifyExecuteError maps execution-layer errors onto the result taxonomy.
func classifyExecuteError(err error) (ErrorKind, string) {
	var se *hcm.StatusError
	if errors.As(err, &se) {
		kind := KindRemote4xx
		if se.StatusCode >= 500 {
			kind = KindRemote5xx
		}
		return kind, common.Redact(se.Error())
	}
	var te *hcm.TransportError
	if errors.As(err, &te) {
		if te.Timeout {
			return KindTimeout, common.Redact(te.Error())
		}
		return KindTransport, common.Redact(te.Error())
	}
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		return KindAuth, common.Redact(ae.Error())
	}
	return KindTransport, common.Redact(err.Error())
}

// coerceArgs validates arguments against the parameter schema and returns
// the coerced string form of every parameter.
func (d *Dispatcher) coerceArgs(desc ToolDescriptor, args map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(desc.Params))
	for _, p := range desc.Params {
		raw, present := args[p.Name]
		if !present || raw == nil || raw == "" {
			if p.Default != "" {
				out[p.Name] = d.resolveDefault(p)
				continue
			}
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			out[p.Name] = ""
			continue
		}

		val, err := coerceValue(p, raw)
		if err != nil {
			return nil, err
		}
		if p.Uppercase {
			val = strings.ToUpper(val)
		}
		out[p.Name] = val
	}
	return out, nil
}

// resolveDefault fills an absent optional parameter.
func (d *Dispatcher) resolveDefault(p Param) string {
	if p.Default == "today" && p.Type == TypeDate {
		return d.now().Format("2006-01-02")
	}
	return p.Default
}

// coerceValue converts one argument to its wire form.
func coerceValue(p Param, raw interface{}) (string, error) {
	switch p.Type {
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return "", fmt.Errorf("parameter %q must be a number, got %q", p.Name, v)
			}
			return v, nil
		default:
			return "", fmt.Errorf("parameter %q must be a number", p.Name)
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", fmt.Errorf("parameter %q must be a boolean, got %q", p.Name, v)
			}
			return strconv.FormatBool(b), nil
		default:
			return "", fmt.Errorf("parameter %q must be a boolean", p.Name)
		}
	case TypeDate:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("parameter %q must be a DD-MM-YYYY date string", p.Name)
		}
		t, err := time.Parse("02-01-2006", s)
		if err != nil {
			return "", fmt.Errorf("parameter %q must be a DD-MM-YYYY date, got %q", p.Name, s)
		}
		return t.Format("2006-01-02"), nil
	default:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("parameter %q must be a string", p.Name)
		}
		return s, nil
	}
}

// buildRequest substitutes coerced arguments into the descriptor's path and
// body templates.
func buildRequest(desc ToolDescriptor, args map[string]string) (hcm.RequestSpec, error) {
	path := desc.Path
	query := url.Values{}

	for _, p := range desc.Params {
		val := args[p.Name]
		switch p.In {
		case InPath:
			path = substitutePath(path, p.Name, val)
		case InQuery:
			if val != "" {
				query.Set(p.Name, val)
			}
		}
	}

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + query.Encode()
	}

	var body []byte
	if desc.BodyTemplate != "" {
		rendered := desc.BodyTemplate
		for _, p := range desc.Params {
			if p.In != InBody {
				continue
			}
			rendered = strings.ReplaceAll(rendered, "{"+p.Name+"}", jsonEscape(args[p.Name]))
		}
		if !json.Valid([]byte(rendered)) {
			return hcm.RequestSpec{}, fmt.Errorf("tool %q produced an invalid request body", desc.Name)
		}
		body = []byte(rendered)
	}

	return hcm.RequestSpec{
		Method:           strings.ToUpper(desc.Method),
		Path:             path,
		Body:             body,
		FrameworkVersion: desc.FrameworkVersion,
		Timeout:          time.Duration(desc.TimeoutSeconds) * time.Second,
	}, nil
}

// substitutePath replaces a {name} placeholder, escaping for the segment it
// sits in: path escaping before the query string, query escaping after.
func substitutePath(path, name, val string) string {
	placeholder := "{" + name + "}"
	before, after, hasQuery := strings.Cut(path, "?")
	before = strings.ReplaceAll(before, placeholder, url.PathEscape(val))
	if !hasQuery {
		return before
	}
	after = strings.ReplaceAll(after, placeholder, url.QueryEscape(val))
	return before + "?" + after
}

// jsonEscape renders a value for inclusion inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
