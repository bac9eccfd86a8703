package aep

import (
	"context"
	"encoding/json"

	"github.com/aep/aep/internal/plugin"
	"github.com/aep/aep/memory"
)

// PluginAgent adapts an agent instantiated from a signed, loaded plugin to
// the Agent interface. It holds the originating *plugin.Plugin alive for
// as long as the wrapper is reachable, since Go's plugin package requires
// the library handle to outlive anything produced by its factory.
type PluginAgent struct {
	lib   *plugin.Plugin
	agent plugin.Agent
}

// NewPluginAgent wraps agent, instantiated from lib, as an Agent. Type()
// always reports "plugin" regardless of what the wrapped agent claims, so
// Registry.Replace's built-in-shadowing check can't be bypassed by a
// plugin misreporting its own type.
func NewPluginAgent(lib *plugin.Plugin, agent plugin.Agent) *PluginAgent {
	return &PluginAgent{lib: lib, agent: agent}
}

func (p *PluginAgent) Name() string { return p.agent.Name() }

func (p *PluginAgent) Type() string { return "plugin" }

func (p *PluginAgent) Capabilities() []string { return p.agent.Capabilities() }

func (p *PluginAgent) Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error) {
	return p.agent.Handle(ctx, input, mem)
}

func (p *PluginAgent) Health() AgentHealth {
	h := p.agent.Health()
	return AgentHealth{
		Status:               h.Status,
		Details:              h.Details,
		UptimeSeconds:        h.UptimeSeconds,
		TotalRequests:        h.TotalRequests,
		ErrorCount:           h.ErrorCount,
		AverageResponseMsecs: h.AverageResponseMsecs,
	}
}

// Hash returns the loaded plugin's verified content hash.
func (p *PluginAgent) Hash() string { return p.lib.Hash }
