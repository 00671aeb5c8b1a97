package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eddo_server/pkg/apperr"
)

// Registry holds the closed tool catalog and dispatches calls by name. The
// catalog is fixed at startup; Execute never mutates it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the catalog.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// RegisterAll registers multiple tools.
func (r *Registry) RegisterAll(tools ...Tool) {
	for _, tool := range tools {
		r.Register(tool)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the catalog sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Execute validates the arguments and runs the named tool, wrapping the
// outcome in the response envelope. Every error kind, including panics from
// below, ends up as a failure envelope rather than a transport error.
func (r *Registry) Execute(ctx context.Context, sess *Session, name string, args map[string]any) (env *Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			env = ErrorEnvelope(name, apperr.Internal(fmt.Sprintf("tool %s panicked: %v", name, rec)))
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		return ErrorEnvelope(name, apperr.NotFound("tool "+name))
	}
	if sess == nil || sess.Anonymous {
		return ErrorEnvelope(name, apperr.Unauthorized("authentication required: provide an X-User-ID header"))
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool.Parameters(), args); err != nil {
		return ErrorEnvelope(name, err)
	}

	start := time.Now()
	data, summary, err := tool.Execute(ctx, sess, args)
	if err != nil {
		return ErrorEnvelope(name, err)
	}
	return successEnvelope(name, summary, data, time.Since(start))
}

// DefaultCatalog wires the complete tool set.
func DefaultCatalog() *Registry {
	r := NewRegistry()
	r.RegisterAll(
		&CreateTodoTool{},
		&ListTodosTool{},
		&GetTodoTool{},
		&UpdateTodoTool{},
		&ToggleTodoCompletionTool{},
		&DeleteTodoTool{},
		&StartTimeTrackingTool{},
		&StopTimeTrackingTool{},
		&ActiveTimeTrackingTool{},
		&UserInfoTool{},
		&ServerInfoTool{},
		&BriefingTool{},
		&RecapTool{},
	)
	return r
}
