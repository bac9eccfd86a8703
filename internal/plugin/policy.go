// Package plugin implements the signed plugin loader and hot-reload
// pipeline: integrity verification against a hash allowlist, quarantine on
// mismatch, and panic-isolated agent instantiation from loaded shared
// libraries.
package plugin

// SecurityPolicy gates which plugin files may be loaded. Read-only after
// orchestrator construction.
type SecurityPolicy struct {
	AllowedExtensions map[string]bool
	AllowedHashes     map[string]bool
	RequireSignatures bool
	MaxSizeBytes      int64
}

// DefaultSecurityPolicy matches the reference defaults: .so/.dll/.dylib,
// signatures required, 10MiB cap.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		AllowedExtensions: map[string]bool{".so": true, ".dll": true, ".dylib": true},
		AllowedHashes:     map[string]bool{},
		RequireSignatures: true,
		MaxSizeBytes:      10 * 1024 * 1024,
	}
}

func (p SecurityPolicy) allowsExtension(ext string) bool {
	return p.AllowedExtensions[ext]
}

func (p SecurityPolicy) allowsHash(hash string) bool {
	return p.AllowedHashes[hash]
}
