package plugin

import (
	"fmt"
	"os"
	"path/filepath"
)

func extOf(path string) string {
	return filepath.Ext(path)
}

func statFile(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// moveToQuarantine relocates path to <dir>/quarantine/<unixTS>_<basename>,
// creating the quarantine directory if needed. The original path no
// longer exists once this returns successfully.
func moveToQuarantine(path string, unixTS int64) (string, error) {
	dir := filepath.Join(filepath.Dir(path), "quarantine")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, fmt.Sprintf("%d_%s", unixTS, filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}
