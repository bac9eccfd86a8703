package aep

import "fmt"

// ErrUnknownAgent is returned when a task names an agent not present in the
// registry.
type ErrUnknownAgent struct {
	Name string
}

func (e *ErrUnknownAgent) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.Name)
}

// ErrAlreadyRegistered is returned by Registry.Register when name is taken
// and no replace was requested.
type ErrAlreadyRegistered struct {
	Name string
}

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("agent already registered: %s", e.Name)
}

// ErrNotFound is returned by Registry.Remove/Lookup for an absent name.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("agent not found: %s", e.Name)
}

// ErrBuiltinShadowingRefused is returned by Registry.Replace when name
// currently holds a "builtin"-typed agent and the registry was not
// constructed with WithAllowBuiltinOverride(true).
type ErrBuiltinShadowingRefused struct {
	Name string
}

func (e *ErrBuiltinShadowingRefused) Error() string {
	return fmt.Sprintf("refusing to shadow builtin agent %q without override", e.Name)
}

// ErrQueueFull is returned when the Dispatcher has no free concurrency
// permit at admission time.
type ErrQueueFull struct{}

func (e *ErrQueueFull) Error() string { return "dispatcher queue full" }

// ErrTimeout is returned when a handler does not complete within its
// deadline.
type ErrTimeout struct {
	Agent    string
	Deadline string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("agent %s timed out after %s", e.Agent, e.Deadline)
}

// ErrHandlerFailed wraps an error returned by an agent's handler.
type ErrHandlerFailed struct {
	Agent   string
	Message string
}

func (e *ErrHandlerFailed) Error() string {
	return fmt.Sprintf("agent %s handler failed: %s", e.Agent, e.Message)
}

// ErrConfiguration reports an invariant violated at configuration load
// time. It is always fatal.
type ErrConfiguration struct {
	Violations []string
}

func (e *ErrConfiguration) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Violations[0])
	}
	return fmt.Sprintf("configuration error: %d invariants violated: %v", len(e.Violations), e.Violations)
}
