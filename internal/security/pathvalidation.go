// Package security provides path validation helpers for file exports.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// rejecting traversal via .. components or symlinks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	// Resolve symlinks where the paths exist. For a not-yet-created file,
	// resolve the nearest existing parent so a symlinked directory cannot
	// smuggle the write elsewhere.
	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else if resolved, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
		canonicalPath = filepath.Join(resolved, filepath.Base(absPath))
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path %q escapes directory %q", filePath, safeDir)
	}
	return nil
}

// ValidateExportPath validates a file path for export operations. The path
// must be within the temp directory or the current working directory.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{os.TempDir(), cwd} {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path must be within the temp or working directory")
}

// SanitizeFilename makes a safe filename from an arbitrary string: anything
// that is not an ASCII letter, digit, dot, underscore or dash becomes an
// underscore, runs of underscores collapse, and the result is length-capped.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
