package llms

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps provider names to backend adapters and resolves model
// strings of the form "provider:model". It is read-mostly: registration
// happens at startup only.
type Registry struct {
	mu              sync.RWMutex
	defaultProvider string
	providers       map[string]Provider
	order           []string
}

func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		defaultProvider: defaultProvider,
		providers:       make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	if p.Name() == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered providers in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

func (r *Registry) DefaultProviderName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider
}

// Resolved is the outcome of model routing.
type Resolved struct {
	Provider     Provider
	ProviderName string
	Model        string
}

// Resolve routes a model string. A "provider:" prefix (split on the first
// colon) pins the provider; otherwise the default provider owns the request.
func (r *Registry) Resolve(model string) (*Resolved, error) {
	providerName := r.DefaultProviderName()
	name := model
	if i := strings.Index(model, ":"); i >= 0 {
		providerName = model[:i]
		name = model[i+1:]
	}
	p, ok := r.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider in model")
	}
	return &Resolved{Provider: p, ProviderName: providerName, Model: name}, nil
}
