package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skillsenselab/recap/logger"
)

// stopTimeout bounds how long a single component may take to shut down.
const stopTimeout = 10 * time.Second

type entry struct {
	component Component
	started   bool
}

// Registry owns the lifecycle of the daemon's infrastructure. Components
// start in registration order and stop in reverse, so dependencies register
// first.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Register adds a component. Names must be unique.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}

	e := &entry{component: c}
	r.entries = append(r.entries, e)
	r.byName[name] = e

	logger.Debug("component registered", logger.Fields("component", name))
	return nil
}

// StartAll starts every component in registration order and stops at the
// first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger.Info("starting components", logger.Fields("count", len(r.entries)))

	for _, e := range r.entries {
		name := e.component.Name()
		if err := e.component.Start(ctx); err != nil {
			logger.Error("component start failed", logger.ErrorFields(err, "component", name))
			return fmt.Errorf("start %s: %w", name, err)
		}
		e.started = true
		logger.Debug("component started", logger.Fields("component", name))
	}
	return nil
}

// StopAll stops started components in reverse registration order. A failing
// component does not keep the rest from stopping; failures are collected
// into the returned error.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.started {
			continue
		}
		name := e.component.Name()

		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		err := e.component.Stop(stopCtx)
		cancel()

		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			logger.Error("component stop failed", logger.ErrorFields(err, "component", name))
		} else {
			logger.Info("component stopped", logger.Fields("component", name))
		}
		e.started = false
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// HealthAll collects the health of every registered component in
// registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.component.Health(ctx))
	}
	return out
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byName[name]; ok {
		return e.component
	}
	return nil
}
