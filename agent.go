package aep

import (
	"context"
	"encoding/json"

	"github.com/aep/aep/memory"
)

// Agent is the uniform handler contract every unit of computation in the
// runtime implements, whether built in, loaded from a signed plugin, or
// bridged to a foreign-language runtime. Implementations must be safe to
// invoke from multiple goroutines concurrently: the registry holds one
// shared instance per name and the Dispatcher may run several tasks
// against it in parallel.
type Agent interface {
	// Name returns the agent's registry identity. Non-empty, unique per
	// registry.
	Name() string
	// Type returns a free-form type tag (e.g. "builtin", "plugin",
	// "bridge").
	Type() string
	// Capabilities lists the agent's advertised capability strings.
	Capabilities() []string
	// Handle runs the agent against input and returns a JSON result or an
	// error. mem is nil when the caller has no memory engine configured.
	Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error)
	// Health reports the agent's current health record.
	Health() AgentHealth
}

// AgentHealth is the per-agent status record surfaced by the Lifecycle/
// Health component.
type AgentHealth struct {
	Status               string  `json:"status"`
	Details              string  `json:"details,omitempty"`
	UptimeSeconds        uint64  `json:"uptime_seconds"`
	TotalRequests        uint64  `json:"total_requests"`
	ErrorCount           uint64  `json:"error_count"`
	AverageResponseMsecs float64 `json:"average_response_time_ms"`
}

// Task is a unit of dispatch work: the named agent to run, its input, and
// a reply channel the Dispatcher sends exactly one response on. Construct
// with NewTask so Reply is always buffered.
type Task struct {
	AgentName string
	Input     json.RawMessage
	Reply     chan Reply
}

// NewTask builds a Task with a capacity-1 reply channel, guaranteeing the
// Dispatcher's single reply send never blocks even if nobody receives it.
func NewTask(agentName string, input json.RawMessage) Task {
	return Task{
		AgentName: agentName,
		Input:     input,
		Reply:     make(chan Reply, 1),
	}
}

// Reply is the single value sent on a Task's reply channel: either Result
// is set (success) or Err is non-nil (any of ErrUnknownAgent, ErrQueueFull,
// ErrTimeout, ErrHandlerFailed).
type Reply struct {
	Result json.RawMessage
	Err    error
}
