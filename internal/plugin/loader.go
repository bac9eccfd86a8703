package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	stdplugin "plugin"
	"time"

	"github.com/aep/aep/memory"
)

// Agent mirrors aep.Agent's method set so this package never imports the
// root package (which in turn may import this one to wire loaded agents
// into its registry). Health returns this package's AgentHealth rather
// than aep.AgentHealth, so the two interfaces are not interchangeable; the
// root package's PluginAgent adapts a plugin.Agent to aep.Agent.
type Agent interface {
	Name() string
	Type() string
	Capabilities() []string
	Handle(ctx context.Context, input json.RawMessage, mem *memory.Engine) (json.RawMessage, error)
	Health() AgentHealth
}

// AgentHealth mirrors aep.AgentHealth field-for-field.
type AgentHealth struct {
	Status               string  `json:"status"`
	Details              string  `json:"details,omitempty"`
	UptimeSeconds        uint64  `json:"uptime_seconds"`
	TotalRequests        uint64  `json:"total_requests"`
	ErrorCount           uint64  `json:"error_count"`
	AverageResponseMsecs float64 `json:"average_response_time_ms"`
}

// factorySymbol is the exported symbol every plugin must provide. Go's
// plugin package resolves symbols by exported identifier rather than a raw
// C function pointer, so CreateAgent stands in for the C-ABI
// create_agent() -> *Agent contract: a niladic factory returning a heap
// Agent the host takes ownership of.
const factorySymbol = "CreateAgent"

type factoryFunc func() Agent

// Plugin is a loaded shared library: the library handle (kept alive for
// as long as any agent instantiated from it is reachable) plus its
// resolved factory symbol and content hash.
type Plugin struct {
	lib     *stdplugin.Plugin
	factory factoryFunc
	Hash    string
	Path    string
}

// Load verifies path against policy and, on success, dlopens it and
// resolves its factory symbol. On a hash mismatch the file is quarantined
// and ErrNotAllowlisted is returned; the original path no longer exists
// after that call returns.
func Load(path string, policy SecurityPolicy) (*Plugin, error) {
	ext := extOf(path)
	if !policy.allowsExtension(ext) {
		return nil, &ErrInvalidExtension{Path: path, Extension: ext}
	}

	info, err := statFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.Size() > policy.MaxSizeBytes {
		return nil, &ErrFileTooLarge{Path: path, Size: info.Size(), Max: policy.MaxSizeBytes}
	}

	content, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if policy.RequireSignatures {
		if len(policy.AllowedHashes) == 0 {
			return nil, &ErrConfiguration{Reason: "plugin allowlist is empty but signature verification is enabled"}
		}
		if !policy.allowsHash(hash) {
			quarantined, qerr := quarantine(path)
			if qerr != nil {
				return nil, fmt.Errorf("plugin: quarantine %s: %w", path, qerr)
			}
			return nil, &ErrNotAllowlisted{Path: path, Hash: hash, QuarantinedTo: quarantined}
		}
	}

	lib, err := stdplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}
	sym, err := lib.Lookup(factorySymbol)
	if err != nil {
		return nil, &ErrMissingSymbol{Path: path, Symbol: factorySymbol}
	}
	factory, ok := sym.(func() Agent)
	if !ok {
		return nil, &ErrMissingSymbol{Path: path, Symbol: factorySymbol}
	}

	return &Plugin{lib: lib, factory: factory, Hash: hash, Path: path}, nil
}

// Instantiate calls the plugin's factory symbol under panic isolation. A
// panicking factory becomes ErrInstantiationPanicked; a nil return becomes
// ErrNullFactory. The returned agent is the factory's value as is and
// holds no reference to p or its library handle; the root package's
// PluginAgent keeps the *Plugin alongside the agent it wraps.
func (p *Plugin) Instantiate() (agent Agent, err error) {
	defer func() {
		if r := recover(); r != nil {
			agent = nil
			err = &ErrInstantiationPanicked{Path: p.Path, Recovered: fmt.Sprint(r)}
		}
	}()
	a := p.factory()
	if a == nil {
		return nil, &ErrNullFactory{Path: p.Path}
	}
	return a, nil
}

func quarantine(path string) (string, error) {
	return moveToQuarantine(path, time.Now().Unix())
}
