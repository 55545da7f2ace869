package mcp

import (
	"errors"
	"testing"
)

func minimalTool(name string) ToolDescriptor {
	return ToolDescriptor{
		Name:        name,
		Description: "test tool",
		Method:      "GET",
		Path:        "/things",
	}
}

func TestNewRegistry_RejectsInvalidDescriptor(t *testing.T) {
	bad := minimalTool("bad")
	bad.Path = "no-leading-slash"
	if _, err := NewRegistry(bad); err == nil {
		t.Fatal("Expected error for invalid descriptor")
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(minimalTool("dup"), minimalTool("dup")); err == nil {
		t.Fatal("Expected error for duplicate tool name")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r, err := NewRegistry(minimalTool("alpha"), minimalTool("beta"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	d, err := r.Resolve("alpha")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Name != "alpha" {
		t.Errorf("Expected alpha, got %s", d.Name)
	}

	_, err = r.Resolve("gamma")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r, err := NewRegistry(minimalTool("c"), minimalTool("a"), minimalTool("b"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got := r.List()
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d tools, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
}
