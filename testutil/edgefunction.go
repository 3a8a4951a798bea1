package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kbukum/backplane/capability"
)

// Handler is the body of a deployed mock edge function.
type Handler func(payload []byte) ([]byte, error)

// MemoryEdge is an in-memory EdgeFunctionAdapter. The durable state a
// migration copies is the deployed function sources; handlers are bound
// locally per instance.
type MemoryEdge struct {
	AdapterCore

	mu       sync.RWMutex
	sources  map[string][]byte
	handlers map[string]Handler
}

// NewMemoryEdge creates an empty edge-function adapter named name.
func NewMemoryEdge(name string) *MemoryEdge {
	e := &MemoryEdge{
		AdapterCore: newCore(name, capability.EdgeFunction),
		sources:     make(map[string][]byte),
		handlers:    make(map[string]Handler),
	}
	e.snapshot = e.items
	e.restore = e.restoreUnit
	e.purge = e.clear
	return e
}

// Deploy registers a function with its source and handler.
func (e *MemoryEdge) Deploy(name string, source []byte, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[name] = source
	e.handlers[name] = handler
}

// Bind attaches a handler to an already imported function source, the
// way a migrated runtime re-instantiates deployed code.
func (e *MemoryEdge) Bind(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = handler
}

// Invoke implements capability.EdgeFunctionAdapter.
func (e *MemoryEdge) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	e.mu.RLock()
	handler, bound := e.handlers[name]
	_, deployed := e.sources[name]
	e.mu.RUnlock()

	if !deployed {
		return nil, fmt.Errorf("function %q is not deployed", name)
	}
	if !bound {
		return nil, fmt.Errorf("function %q has no bound handler", name)
	}
	return handler(payload)
}

func (e *MemoryEdge) items() map[string][]byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]byte, len(e.sources))
	for name, src := range e.sources {
		out["fn/"+name] = src
	}
	return out
}

func (e *MemoryEdge) restoreUnit(unit capability.Unit) error {
	name, ok := strings.CutPrefix(unit.Key, "fn/")
	if !ok {
		return fmt.Errorf("malformed unit key %q", unit.Key)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[name] = unit.Payload
	return nil
}

func (e *MemoryEdge) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = make(map[string][]byte)
	e.handlers = make(map[string]Handler)
}
