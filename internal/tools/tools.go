// Package tools defines the function-tool contract the driver executes
// against, and the registry the driver resolves tools from. Concrete tool
// implementations are registered by the embedding application.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/providers"
)

// Argument validation modes.
const (
	ValidationSchema      = "schema"      // validated against Parameters before Call
	ValidationPassthrough = "passthrough" // raw decoded args handed through
)

// Tool is one function tool callable from a generation turn.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters() map[string]any
	// ArgsValidation selects schema or passthrough validation.
	ArgsValidation() string
	// Call executes the tool. The context carries the drive's abort token.
	Call(ctx context.Context, dlg *dialog.Dialog, agent *minds.Member, args map[string]any) (string, error)
}

// Registry is the explicit tool registry injected into the driver.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ProviderDefs projects the named tools for a provider API. Unknown names
// are skipped; nil selects every registered tool.
func (r *Registry) ProviderDefs(names []string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names == nil {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Validation      string
	Fn              func(ctx context.Context, dlg *dialog.Dialog, agent *minds.Member, args map[string]any) (string, error)
}

func (t *FuncTool) Name() string               { return t.ToolName }
func (t *FuncTool) Description() string        { return t.ToolDescription }
func (t *FuncTool) Parameters() map[string]any { return t.ToolParameters }

func (t *FuncTool) ArgsValidation() string {
	if t.Validation == "" {
		return ValidationSchema
	}
	return t.Validation
}

func (t *FuncTool) Call(ctx context.Context, dlg *dialog.Dialog, agent *minds.Member, args map[string]any) (string, error) {
	if t.Fn == nil {
		return "", fmt.Errorf("tool %q has no implementation", t.ToolName)
	}
	return t.Fn(ctx, dlg, agent, args)
}
