// Package registry implements the process-wide Task Registry: a
// name -> handler mapping populated once at startup and consulted by
// both the producer API host and the worker host. It realizes the
// "dynamic task dispatch by string name" pattern as an explicit,
// typed registration step rather than runtime reflection.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is the shape every registered task handler must satisfy.
// Handlers are expected to be pure with respect to their inputs; the
// engine makes no isolation guarantees beyond the wall-clock timeout
// enforced by the caller.
type HandlerFunc func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Options declares arg-shape and policy hints at registration time
// instead of inferring them from a handler's reflected signature.
type Options struct {
	// DeclaredTimeoutSeconds, if non-zero, documents the handler's
	// expected per-attempt bound; the engine still enforces whatever
	// timeout the task record itself carries.
	DeclaredTimeoutSeconds int

	// DeclaredMaxRetries documents the handler's expected retry
	// policy for operational tooling; it is not enforced here.
	DeclaredMaxRetries int
}

// Descriptor is what a successful Resolve returns.
type Descriptor struct {
	Name    string
	Handler HandlerFunc
	Options Options
}

// ConflictError is returned by Register when name is already bound to
// a different handler. It is non-retryable.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry: task %q is already registered with a different handler", e.Name)
}

// UnknownTaskError is returned by Resolve when name has no registered
// handler. It classifies as non-retryable: the worker routes the task
// straight to FAILED.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("registry: unknown task %q", e.Name)
}

// Registry is a process-wide name -> handler mapping. The zero value
// is not usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Descriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Descriptor)}
}

// Register binds name to handler. Registration is idempotent: calling
// it twice for the same name with the same handler value is a no-op.
// Registering a different handler under an already-bound name returns
// a *ConflictError.
func (r *Registry) Register(name string, handler HandlerFunc, opts Options) error {
	if name == "" {
		return fmt.Errorf("registry: task name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("registry: task %q: handler must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handlers[name]; ok {
		if funcsEqual(existing.Handler, handler) {
			return nil
		}
		return &ConflictError{Name: name}
	}

	r.handlers[name] = Descriptor{Name: name, Handler: handler, Options: opts}
	return nil
}

// MustRegister panics on registration failure; intended for use in
// package-level init blocks where a conflict is a programming error.
func (r *Registry) MustRegister(name string, handler HandlerFunc, opts Options) {
	if err := r.Register(name, handler, opts); err != nil {
		panic(err)
	}
}

// Resolve looks up the handler bound to name. A miss returns
// *UnknownTaskError.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.handlers[name]
	if !ok {
		return Descriptor{}, &UnknownTaskError{Name: name}
	}
	return d, nil
}

// List returns every registered task name, sorted, for operational
// tooling (the list_tasks CLI surface).
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// funcsEqual compares two HandlerFunc values by identity. Go forbids
// comparing func values directly except against nil, so the code
// pointers are compared through their %p renderings instead.
func funcsEqual(a, b HandlerFunc) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}
