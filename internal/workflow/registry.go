package workflow

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"sceneflow/internal/config"
	"sceneflow/internal/services"
)

// Deps carries what workflow constructors may use.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
}

// Constructor builds a workflow from its dependencies.
type Constructor func(Deps) (Workflow, error)

// Registry maps workflow names to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{}}
}

// DefaultRegistry returns a registry holding the built-in workflows.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ExampleName, NewExample)
	r.Register(CommandName, NewCommand)
	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[normalizeName(name)] = ctor
}

// Names returns the registered workflow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Resolve constructs the workflow registered under name. Unknown names return
// services.ErrConfiguration.
func (r *Registry) Resolve(name string, deps Deps) (Workflow, error) {
	key := normalizeName(name)
	r.mu.RLock()
	ctor, ok := r.constructors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "resolve",
			fmt.Sprintf("unknown workflow %q (registered: %s)", name, strings.Join(r.Names(), ", ")), nil)
	}
	if deps.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "resolve", "config required", nil)
	}
	wf, err := ctor(deps)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
