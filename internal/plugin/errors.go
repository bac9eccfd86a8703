package plugin

import "fmt"

// ErrInvalidExtension is returned when a candidate plugin file's extension
// is not in the security policy's allowlist.
type ErrInvalidExtension struct {
	Path      string
	Extension string
}

func (e *ErrInvalidExtension) Error() string {
	return fmt.Sprintf("plugin extension %q not allowed: %s", e.Extension, e.Path)
}

// ErrFileTooLarge is returned when a candidate plugin file exceeds the
// security policy's size cap.
type ErrFileTooLarge struct {
	Path string
	Size int64
	Max  int64
}

func (e *ErrFileTooLarge) Error() string {
	return fmt.Sprintf("plugin file too large: %d bytes (max %d): %s", e.Size, e.Max, e.Path)
}

// ErrNotAllowlisted is returned when a plugin's SHA-256 hash is not in the
// allowlist. The file has already been moved to QuarantinedTo by the time
// this error is returned.
type ErrNotAllowlisted struct {
	Path          string
	Hash          string
	QuarantinedTo string
}

func (e *ErrNotAllowlisted) Error() string {
	return fmt.Sprintf("plugin hash %s not in allowlist, quarantined to %s", e.Hash, e.QuarantinedTo)
}

// ErrMissingSymbol is returned when a loaded library does not export the
// required factory symbol.
type ErrMissingSymbol struct {
	Path   string
	Symbol string
}

func (e *ErrMissingSymbol) Error() string {
	return fmt.Sprintf("plugin %s missing symbol %q", e.Path, e.Symbol)
}

// ErrInstantiationPanicked is returned when a plugin's factory symbol
// panics; the panic is trapped at this boundary and never propagates to
// the caller.
type ErrInstantiationPanicked struct {
	Path      string
	Recovered string
}

func (e *ErrInstantiationPanicked) Error() string {
	return fmt.Sprintf("plugin %s instantiation panicked: %s", e.Path, e.Recovered)
}

// ErrNullFactory is returned when a plugin's factory symbol returns a nil
// agent.
type ErrNullFactory struct {
	Path string
}

func (e *ErrNullFactory) Error() string {
	return fmt.Sprintf("plugin %s factory returned a nil agent", e.Path)
}

// ErrConfiguration reports a plugin-policy misconfiguration (e.g.
// signatures required with an empty allowlist).
type ErrConfiguration struct {
	Reason string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("plugin configuration error: %s", e.Reason)
}
