package insight

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/logger"
)

// Router dispatches processing requests to a registered provider based on
// the requested model identifier. Registration happens at startup; Process
// calls may run concurrently.
type Router struct {
	mu        sync.RWMutex
	prefixes  map[string]Provider
	providers map[string]Provider
	defaultID string
	retry     RetryConfig
	log       *logger.Logger
}

// NewRouter creates an empty router with the default retry policy.
func NewRouter() *Router {
	return &Router{
		prefixes:  make(map[string]Provider),
		providers: make(map[string]Provider),
		retry:     DefaultRetryConfig(),
		log:       logger.Get("insight"),
	}
}

// WithRetry overrides the retry policy applied around provider calls.
func (r *Router) WithRetry(cfg RetryConfig) *Router {
	r.retry = cfg
	return r
}

// Register adds a provider and binds it to the given model-id prefixes.
// Later registrations win on prefix conflicts.
func (r *Router) Register(p Provider, prefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	for _, prefix := range prefixes {
		r.prefixes[prefix] = p
	}
	if r.defaultID == "" {
		r.defaultID = p.Name()
	}
}

// SetDefault marks the provider used when no model is requested or the
// requested model matches no prefix.
func (r *Router) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		r.defaultID = name
	}
}

// Resolve returns the provider responsible for a model identifier. The
// longest matching registered prefix wins; an empty or unrecognized model
// falls back to the default provider.
func (r *Router) Resolve(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if model != "" {
		var best Provider
		bestLen := -1
		for prefix, p := range r.prefixes {
			if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
				best, bestLen = p, len(prefix)
			}
		}
		if best != nil {
			return best, nil
		}
	}
	if p, ok := r.providers[r.defaultID]; ok {
		return p, nil
	}
	return nil, errors.Internal(nil).WithDetail("reason", "no providers registered")
}

// Process routes the request to a provider and invokes it with the retry
// policy. Transient transport failures are retried; rate limits and context
// cancellation pass through on the first occurrence.
func (r *Router) Process(ctx context.Context, req Request) (*Result, error) {
	p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	result, err := retryProcess(ctx, r.retry, func() (*Result, error) {
		return p.Process(ctx, req)
	})
	if err != nil {
		r.log.Warn("provider call failed", logger.Fields(
			logger.FieldProvider, p.Name(),
			logger.FieldModel, req.Model,
			logger.FieldError, err.Error(),
		))
		return nil, err
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	return result, nil
}

// DefaultID returns the name of the default provider.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Descriptors lists the registered providers with a live availability probe.
func (r *Router) Descriptors(ctx context.Context) []Descriptor {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	defaultID := r.defaultID
	r.mu.RUnlock()

	out := make([]Descriptor, 0, len(providers))
	for _, p := range providers {
		out = append(out, Descriptor{
			ID:            p.Name(),
			Name:          displayName(p.Name()),
			Models:        p.Models(),
			CostPerMinute: p.CostPerMinute(),
			Connected:     p.IsAvailable(ctx),
			Default:       p.Name() == defaultID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func displayName(id string) string {
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}
