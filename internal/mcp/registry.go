package mcp

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Resolve for names with no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Registry is the static tool table: a lookup keyed by name plus the
// registration order for stable listing. No mutation after construction.
type Registry struct {
	order  []string
	byName map[string]ToolDescriptor
}

// NewRegistry validates and registers the given descriptors.
func NewRegistry(tools ...ToolDescriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]ToolDescriptor, len(tools))}
	for _, d := range tools {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tool descriptor: %w", err)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Resolve returns the descriptor for name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (ToolDescriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
