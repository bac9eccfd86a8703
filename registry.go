package aep

import "sync"

// AgentInfo is the (name, type) pair returned by Registry.List.
type AgentInfo struct {
	Name string
	Type string
}

// Registry holds the name→agent mapping with many-reader/few-writer
// access. Reads (Lookup, List) may proceed concurrently; writes
// (Register, Remove, Replace) are serialised against each other and
// against readers by sync.RWMutex, which the Go runtime implements
// writer-preferring: once a writer blocks on Lock, subsequently arriving
// readers queue behind it rather than starving it indefinitely.
type Registry struct {
	mu                   sync.RWMutex
	agents               map[string]Agent
	allowBuiltinOverride bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAllowBuiltinOverride lets Replace overwrite an entry whose current
// Type() is "builtin". Unset (the default), Replace refuses such a
// replacement with ErrBuiltinShadowingRefused: hot-reloading a plugin
// that names the same identity as a built-in agent is a refusal, not a
// silent takeover, unless this override is explicitly set.
func WithAllowBuiltinOverride(allow bool) RegistryOption {
	return func(r *Registry) { r.allowBuiltinOverride = allow }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{agents: make(map[string]Agent)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds agent under name. Returns ErrAlreadyRegistered if name is
// already present.
func (r *Registry) Register(name string, agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[name]; exists {
		return &ErrAlreadyRegistered{Name: name}
	}
	r.agents[name] = agent
	return nil
}

// Replace atomically installs agent under name, overwriting any existing
// entry so concurrent lookups never observe name as absent between the
// old and new instance. If name currently holds a "builtin"-typed agent,
// Replace refuses to shadow it and returns ErrBuiltinShadowingRefused
// unless the Registry was constructed with WithAllowBuiltinOverride(true).
func (r *Registry) Replace(name string, agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.agents[name]; exists && existing.Type() == "builtin" && !r.allowBuiltinOverride {
		return &ErrBuiltinShadowingRefused{Name: name}
	}
	r.agents[name] = agent
	return nil
}

// Remove deletes name. Returns ErrNotFound if absent.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[name]; !exists {
		return &ErrNotFound{Name: name}
	}
	delete(r.agents, name)
	return nil
}

// Lookup returns the agent registered under name, or ErrNotFound.
func (r *Registry) Lookup(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, exists := r.agents[name]
	if !exists {
		return nil, &ErrNotFound{Name: name}
	}
	return agent, nil
}

// List returns the (name, type) pair of every registered agent. Order is
// unspecified.
func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.agents))
	for name, agent := range r.agents {
		out = append(out, AgentInfo{Name: name, Type: agent.Type()})
	}
	return out
}
