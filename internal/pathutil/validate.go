package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths that do not resolve to an acceptable
// location: missing, wrong kind, null bytes, or escaping a required root.
var ErrInvalidPath = errors.New("invalid path")

// ValidateProjectDir resolves raw to an absolute path and verifies it is an
// existing directory. Null bytes are rejected before touching the filesystem.
func ValidateProjectDir(raw string) (string, error) {
	abs, err := cleanAbs(raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, abs)
	}
	return abs, nil
}

// ValidateFilePath resolves raw to an absolute path. When mustBeUnder is
// non-empty, the resolved path must equal mustBeUnder or be strictly nested
// under it; anything else (including ".." traversal out of the root) fails.
// The path itself is not required to exist.
func ValidateFilePath(raw, mustBeUnder string) (string, error) {
	abs, err := cleanAbs(raw)
	if err != nil {
		return "", err
	}
	if mustBeUnder != "" {
		root, err := cleanAbs(mustBeUnder)
		if err != nil {
			return "", err
		}
		if !Contains(root, abs) {
			return "", fmt.Errorf("%w: %s escapes %s", ErrInvalidPath, abs, root)
		}
	}
	return abs, nil
}

// Contains reports whether p equals root or lies strictly under it.
// Both arguments must already be absolute and cleaned.
func Contains(root, p string) bool {
	if p == root {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func cleanAbs(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return filepath.Clean(abs), nil
}
