package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testPluginHash is an allowlist entry for fixtures: the defaults require
// plugin signatures, which Validate only accepts with a non-empty allowlist.
const testPluginHash = "6ae8a75555209fd6c44157c0aed8016e763ff435a19cf186f76863140143ff72"

func TestDefault_IsValid(t *testing.T) {
	s := Default()
	s.Security.JWTSecret = "correct-horse-battery-staple-secret"
	s.Plugins.Allowlist = []string{testPluginHash}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected defaults plus a valid secret and plugin allowlist to validate, got %v", err)
	}
}

func TestValidate_AggregatesAllViolations(t *testing.T) {
	s := Settings{
		Server:   ServerConfig{Port: 0, MaxConnections: 0},
		Security: SecurityConfig{EnableAuthentication: true, JWTSecret: ""},
		Memory:   MemoryConfig{Provider: "redis", URL: ""},
		Plugins:  PluginsConfig{RequireSignatures: true},
	}
	err := s.Validate()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
	if len(cfgErr.Violations) != 5 {
		t.Fatalf("expected 5 violations (port, max_connections, memory.url, jwt_secret, allowlist), got %d: %v",
			len(cfgErr.Violations), cfgErr.Violations)
	}
}

func TestValidate_RejectsShortJWTSecret(t *testing.T) {
	s := Default()
	s.Security.JWTSecret = "too-short"
	err := s.Validate()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
}

func TestValidate_RejectsLowDistinctCharacterSecret(t *testing.T) {
	s := Default()
	s.Security.JWTSecret = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	if err := s.Validate(); err == nil {
		t.Fatalf("expected rejection of a low-entropy secret")
	}
}

func TestValidate_RejectsWeakSecretList(t *testing.T) {
	s := Default()
	s.Security.JWTSecret = "changeme"
	if err := s.Validate(); err == nil {
		t.Fatalf("expected rejection of a well-known weak secret")
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("AEP_SERVER__PORT", "9090")
	t.Setenv("AEP_SECURITY__JWT_SECRET", "env-provided-secret-value-long-enough")
	defer os.Unsetenv("AEP_SERVER__PORT")
	defer os.Unsetenv("AEP_SECURITY__JWT_SECRET")

	path := filepath.Join(t.TempDir(), "aep.toml")
	file := "[server]\nport = 7070\n\n[plugins]\nallowlist = [\"" + testPluginHash + "\"]\n"
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Server.Port != 9090 {
		t.Fatalf("expected env override to set port to 9090, got %d", s.Server.Port)
	}
	if s.Security.JWTSecret != "env-provided-secret-value-long-enough" {
		t.Fatalf("expected env override to set jwt_secret, got %q", s.Security.JWTSecret)
	}
}
