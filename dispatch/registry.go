package dispatch

import (
	"strings"
	"sync"
)

// Registry maps backend identifiers to implementations and holds the fixed
// fallback chain. It replaces string-switch dispatch: new backends register
// under a name and the dispatcher resolves hints against the table.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	// chain is the ordered fallback sequence, highest tier first.
	chain []string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its own name. Registering the same name
// twice replaces the previous entry.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// SetFallbackChain fixes the ordered fallback sequence tried when the hinted
// backend fails. Names must already be registered when Dispatch runs; unknown
// names in the chain are skipped at dispatch time.
func (r *Registry) SetFallbackChain(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chain = append([]string(nil), names...)
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// FallbackChain returns a copy of the configured chain.
func (r *Registry) FallbackChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.chain...)
}

// ResolveHint resolves an agent hint that may contain "|"-separated
// alternatives. The first alternative whose name appears as a substring in
// any of the given signals wins; with no match the first alternative is the
// default. A plain hint resolves to itself.
func ResolveHint(hint string, signals []string) string {
	hint = strings.TrimSpace(hint)
	if !strings.Contains(hint, "|") {
		return hint
	}
	alts := strings.Split(hint, "|")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
	}
	for _, alt := range alts {
		if alt == "" {
			continue
		}
		for _, sig := range signals {
			if strings.Contains(strings.ToLower(sig), strings.ToLower(alt)) {
				return alt
			}
		}
	}
	for _, alt := range alts {
		if alt != "" {
			return alt
		}
	}
	return hint
}
