package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// uuidRegex matches standard UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// toolNameRegex matches safe tool identifiers (alphanumeric, dash, underscore)
	toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateTaskID validates a task ID
func ValidateTaskID(id string) error {
	return ValidateUUID(id)
}

// ValidateToolName validates a tool registry name
func ValidateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("tool name too long: %s", name)
	}
	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("invalid tool name: %s", name)
	}
	return nil
}

// ValidateAttachmentPath checks that an attachment path stays inside baseDir.
// Rejects traversal segments and paths that resolve outside the base directory.
func ValidateAttachmentPath(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("attachment path cannot be empty")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}

	if baseDir == "" {
		return nil
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(baseDir, abs)
	}
	abs = filepath.Clean(abs)
	base := filepath.Clean(baseDir)
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return fmt.Errorf("attachment outside base directory: %s", path)
	}
	return nil
}
