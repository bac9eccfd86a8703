package aep

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aep/aep/internal/bridge"
	"github.com/aep/aep/memory"
)

// bridgeRequest is the Handle input shape a BridgeAgent expects: the
// foreign function to call and its JSON argument.
type bridgeRequest struct {
	Function string          `json:"function"`
	Argument json.RawMessage `json:"argument"`
}

type bridgeResponse struct {
	Result string `json:"result"`
}

// BridgeAgent adapts a Foreign-Runtime Bridge worker to the Agent
// interface, so the Dispatcher can route tasks to it exactly like any
// other agent. Handle decodes {"function", "argument"} from input and
// forwards it to the bridge's dedicated worker thread.
type BridgeAgent struct {
	name         string
	capabilities []string
	bridge       *bridge.Bridge
}

// NewBridgeAgent builds a BridgeAgent named name, advertising
// capabilities, backed by b. b must already have Start running on its own
// goroutine.
func NewBridgeAgent(name string, capabilities []string, b *bridge.Bridge) *BridgeAgent {
	return &BridgeAgent{name: name, capabilities: capabilities, bridge: b}
}

func (a *BridgeAgent) Name() string { return a.name }

func (a *BridgeAgent) Type() string { return "bridge" }

func (a *BridgeAgent) Capabilities() []string { return a.capabilities }

func (a *BridgeAgent) Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error) {
	var req bridgeRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("bridge agent: decode request: %w", err)
	}

	result, err := a.bridge.Submit(ctx, req.Function, req.Argument)
	if err != nil {
		return nil, err
	}

	return json.Marshal(bridgeResponse{Result: result})
}

func (a *BridgeAgent) Health() AgentHealth {
	if a.bridge.Down() {
		return AgentHealth{Status: "down", Details: "bridge worker thread exited"}
	}
	return AgentHealth{Status: "ok"}
}
