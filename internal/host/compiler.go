// Package host is a minimal build-tool host: it keeps per-event hook lists and
// a compilation backed by bundler stats and an output directory.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/efebarandurmaz/smupload/internal/plugin"
)

// Compiler stores hooks registered by plugins, keyed by event name.
type Compiler struct {
	mu    sync.RWMutex
	hooks map[string][]plugin.Hook
}

// NewCompiler creates a compiler with no hooks.
func NewCompiler() *Compiler {
	return &Compiler{
		hooks: make(map[string][]plugin.Hook),
	}
}

// Plugin registers hook for event. Hooks run in registration order.
func (c *Compiler) Plugin(event string, hook plugin.Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = append(c.hooks[event], hook)
}

// Hooks returns how many hooks are registered for event.
func (c *Compiler) Hooks(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event])
}

// Emit runs every hook for event in series, waiting for each hook's done
// callback before starting the next. A hook that calls done more than once is
// only counted once.
func (c *Compiler) Emit(ctx context.Context, event string, comp plugin.Compilation) error {
	c.mu.RLock()
	hooks := append([]plugin.Hook(nil), c.hooks[event]...)
	c.mu.RUnlock()

	for i, hook := range hooks {
		doneCh := make(chan struct{})
		var once sync.Once
		hook(comp, func() { once.Do(func() { close(doneCh) }) })

		select {
		case <-doneCh:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s hook %d: %w", event, i, ctx.Err())
		}
	}
	return nil
}
