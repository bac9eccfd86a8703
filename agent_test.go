package aep

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aep/aep/memory"
)

// stubAgent is a minimal Agent used across this package's tests.
type stubAgent struct {
	name   string
	typ    string
	caps   []string
	delay  time.Duration
	result json.RawMessage
	err    error
}

func (s *stubAgent) Name() string           { return s.name }
func (s *stubAgent) Type() string           { return s.typ }
func (s *stubAgent) Capabilities() []string { return s.caps }

func (s *stubAgent) Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return input, nil
}

func (s *stubAgent) Health() AgentHealth {
	return AgentHealth{Status: "healthy"}
}
