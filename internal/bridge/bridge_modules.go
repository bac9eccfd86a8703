package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// Module is a preloaded script/module file whose on-disk hash matched the
// security policy's allowlist at Start time.
type Module struct {
	Path string
	Hash string
}

// loadModules walks b.moduleDir (non-recursively) and admits every file
// whose SHA-256 hex digest appears in b.allowedModuleHashes. The admitted
// set is what Start hands to the executor, so the interpreter loads
// exactly these files and nothing else. A file whose hash doesn't match
// is skipped with a log event; it never aborts the worker, since one
// stale or tampered module shouldn't take the whole bridge down.
func (b *Bridge) loadModules() {
	entries, err := os.ReadDir(b.moduleDir)
	if err != nil {
		b.logger.Warn("bridge module directory unreadable", "dir", b.moduleDir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(b.moduleDir, entry.Name())
		hash, err := hashFile(path)
		if err != nil {
			b.logger.Warn("bridge module unreadable, skipping", "path", path, "error", err)
			continue
		}
		if !b.allowedModuleHashes[hash] {
			b.logger.Warn("bridge module hash not allowlisted, skipping", "path", path, "hash", hash)
			continue
		}
		b.modules = append(b.modules, Module{Path: path, Hash: hash})
		b.logger.Info("bridge module loaded", "path", path, "hash", hash)
	}
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Modules returns the modules successfully loaded at Start time.
func (b *Bridge) Modules() []Module {
	return b.modules
}
