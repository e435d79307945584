package tool

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Registry holds the tools offered to the model, keyed by ID.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same ID.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	r.tools[t.ID()] = t
	r.mu.Unlock()
}

// Get looks up a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns every registered tool, in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// IDs returns the registered tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// EinoTools adapts every tool to Eino's invokable interface.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.EinoTool())
	}
	return out
}

// ToolInfos returns the Eino descriptors for binding onto a completion
// request.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, einoInfo(t))
	}
	return infos
}

// DefaultRegistry builds a registry with the built-in tools. The guard
// applies to bash; nil leaves it unguarded.
func DefaultRegistry(workDir string, guard *Guard) *Registry {
	r := NewRegistry()
	r.Register(NewBashTool(workDir, WithGuard(guard)))
	r.Register(NewWebFetchTool())
	r.Register(NewClockTool())
	return r
}
