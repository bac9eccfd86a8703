package aep

import "testing"

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	a := &stubAgent{name: "echo", typ: "builtin"}

	if err := r.Register("echo", a); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := r.Lookup("echo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != a {
		t.Error("lookup returned a different agent")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", &stubAgent{name: "echo"})

	err := r.Register("echo", &stubAgent{name: "echo"})
	if _, ok := err.(*ErrAlreadyRegistered); !ok {
		t.Fatalf("got %v, want *ErrAlreadyRegistered", err)
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")
	if _, ok := err.(*ErrNotFound); !ok {
		t.Fatalf("got %v, want *ErrNotFound", err)
	}
}

func TestRegistry_RemoveMissing(t *testing.T) {
	r := NewRegistry()
	err := r.Remove("missing")
	if _, ok := err.(*ErrNotFound); !ok {
		t.Fatalf("got %v, want *ErrNotFound", err)
	}
}

// TestRegistry_ReplaceIsAtomic verifies that Replace overwrites an existing
// entry in place: a lookup afterwards returns the replacement. Replace does
// the overwrite under a single write lock rather than removing then
// inserting; this test runs sequentially and does not exercise concurrent
// lookups.
func TestRegistry_ReplaceIsAtomic(t *testing.T) {
	r := NewRegistry()
	original := &stubAgent{name: "worker", typ: "plugin"}
	r.Register("worker", original)

	replacement := &stubAgent{name: "worker", typ: "reloaded"}
	if err := r.Replace("worker", replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := r.Lookup("worker")
	if err != nil {
		t.Fatalf("lookup after replace: %v", err)
	}
	if got != replacement {
		t.Error("expected replacement agent after Replace")
	}
}

// TestRegistry_ReplaceRefusesBuiltinShadowing verifies hot-reload must
// not silently take over a name currently served by a builtin agent.
func TestRegistry_ReplaceRefusesBuiltinShadowing(t *testing.T) {
	r := NewRegistry()
	builtin := &stubAgent{name: "echo", typ: "builtin"}
	r.Register("echo", builtin)

	err := r.Replace("echo", &stubAgent{name: "echo", typ: "plugin"})
	if _, ok := err.(*ErrBuiltinShadowingRefused); !ok {
		t.Fatalf("got %v, want *ErrBuiltinShadowingRefused", err)
	}

	got, lookupErr := r.Lookup("echo")
	if lookupErr != nil {
		t.Fatalf("lookup: %v", lookupErr)
	}
	if got != builtin {
		t.Error("expected builtin agent to remain registered after refused replace")
	}
}

// TestRegistry_ReplaceAllowsBuiltinOverrideWhenConfigured verifies the
// override escape hatch: a registry built with
// WithAllowBuiltinOverride(true) permits shadowing a builtin entry.
func TestRegistry_ReplaceAllowsBuiltinOverrideWhenConfigured(t *testing.T) {
	r := NewRegistry(WithAllowBuiltinOverride(true))
	r.Register("echo", &stubAgent{name: "echo", typ: "builtin"})

	replacement := &stubAgent{name: "echo", typ: "plugin"}
	if err := r.Replace("echo", replacement); err != nil {
		t.Fatalf("replace with override: %v", err)
	}

	got, err := r.Lookup("echo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != replacement {
		t.Error("expected replacement agent after override-permitted replace")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &stubAgent{name: "a", typ: "builtin"})
	r.Register("b", &stubAgent{name: "b", typ: "plugin"})

	infos := r.List()
	if len(infos) != 2 {
		t.Fatalf("got %d entries, want 2", len(infos))
	}
}
