package internal

import (
	"context"
	"fmt"
	"sync"
)

// Registry is the C3 provider registry: an immutable-after-startup index
// of providers by capability. Lookup is O(providers); providers themselves
// are stateless apart from their own clients (§4.1).
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]Provider
	byCap       map[Capability][]Provider
	priority    map[string]int // explicit providerPriority list, by name
	sealed      bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]Provider{},
		byCap:  map[Capability][]Provider{},
	}
}

// Register adds a provider; names must be unique. Registering after Seal
// panics, since the registry is documented as immutable post-startup.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("internal: Register called on a sealed Registry")
	}
	d := p.Descriptor()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("internal: provider %q already registered", d.Name)
	}
	r.byName[d.Name] = p
	for _, c := range d.Capabilities {
		r.byCap[c] = append(r.byCap[c], p)
	}
	return nil
}

// SetPriority installs an explicit providerPriority ordering (§4.3). Names
// not present are appended in registration order when GetByCapability sorts.
func (r *Registry) SetPriority(order []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priority = make(map[string]int, len(order))
	for i, name := range order {
		r.priority[name] = i
	}
}

// Seal freezes the registry; call once at the end of startup.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// GetByCapability returns all providers exposing cap, ordered by the
// explicit priority list when one is set, else registration order.
func (r *Registry) GetByCapability(cap Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := append([]Provider(nil), r.byCap[cap]...)
	if len(r.priority) == 0 {
		return all
	}
	// Ranks are computed once, in registration order, so an unknown
	// provider's rank is stable across every comparison the sort makes
	// (appended after the known names, per name appearance order).
	unknown := len(r.priority)
	ranks := make([]int, len(all))
	for i, p := range all {
		if rank, ok := r.priority[p.Descriptor().Name]; ok {
			ranks[i] = rank
			continue
		}
		ranks[i] = unknown
		unknown++
	}
	// Stable insertion sort: registry sizes are small (a handful of
	// providers per capability), so O(n^2) is fine and keeps the sort
	// deterministic for the unknown-name tie-break.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && ranks[j] < ranks[j-1]; j-- {
			all[j], all[j-1] = all[j-1], all[j]
			ranks[j], ranks[j-1] = ranks[j-1], ranks[j]
		}
	}
	return all
}

// Available filters providers to those reporting IsAvailable.
func Available(ctx context.Context, providers []Provider) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable(ctx) {
			out = append(out, p)
		}
	}
	return out
}

// ByName returns a single registered provider by name; main.go's backfill
// command uses it to reach the bookapi provider.
func (r *Registry) ByName(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}
