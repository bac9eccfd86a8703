package settings

import "fmt"

// ConfigurationError aggregates every invariant violation found during
// Validate, so startup reports all misconfiguration at once instead of
// failing on the first field checked.
type ConfigurationError struct {
	Violations []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("settings: %d configuration violation(s): %v", len(e.Violations), e.Violations)
}

// Validate enforces the configuration invariants. Misconfiguration is
// fatal: callers are expected to abort startup on a non-nil error.
func (s *Settings) Validate() error {
	var violations []string

	if s.Server.Port <= 0 {
		violations = append(violations, "server.port must be > 0")
	}
	if s.Server.MaxConnections <= 0 {
		violations = append(violations, "server.max_connections must be > 0")
	}

	if s.Memory.Provider == "redis" && s.Memory.URL == "" {
		violations = append(violations, "memory.url must be set when memory.provider is \"redis\"")
	}

	if s.Security.EnableAuthentication {
		violations = append(violations, validateJWTSecret(s.Security.JWTSecret)...)
	}

	if s.Plugins.RequireSignatures && len(s.Plugins.Allowlist) == 0 {
		violations = append(violations, "plugins.allowlist must be non-empty when plugins.require_signatures is true")
	}

	if s.Bridge.Enabled && s.Bridge.Command == "" {
		violations = append(violations, "bridge.command must be set when bridge.enabled is true")
	}

	if len(violations) > 0 {
		return &ConfigurationError{Violations: violations}
	}
	return nil
}

// validateJWTSecret enforces non-empty, minimum length, minimum distinct
// character count, and rejection of hard-coded weak secrets.
func validateJWTSecret(secret string) []string {
	var violations []string

	if secret == "" {
		return []string{"security.jwt_secret must be set when security.enable_authentication is true"}
	}
	if len(secret) < 32 {
		violations = append(violations, "security.jwt_secret must be at least 32 characters")
	}
	if distinctChars(secret) < 4 {
		violations = append(violations, "security.jwt_secret must contain at least 4 distinct characters")
	}
	if weakSecrets[secret] {
		violations = append(violations, "security.jwt_secret must not be a well-known weak secret")
	}
	return violations
}

func distinctChars(s string) int {
	seen := make(map[rune]bool)
	for _, r := range s {
		seen[r] = true
	}
	return len(seen)
}
