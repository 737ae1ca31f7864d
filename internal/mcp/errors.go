package mcp

import (
	"fmt"
	"strings"

	"github.com/HyphaGroup/portcullis/internal/logger"
)

// internalErrorPatterns contains substrings that indicate internal errors
// whose details should not reach clients
var internalErrorPatterns = []string{
	"failed to exec",
	"failed to start",
	"connection refused",
	"no such file",
	"permission denied",
	"context canceled",
	"EOF",
}

// userFacingPatterns marks error messages safe to show to callers
var userFacingPatterns = []string{
	"not found",
	"already",
	"invalid",
	"required",
	"must be",
	"cannot be",
	"capacity",
	"unknown tool",
	"timed out",
	"cancelled",
	"rate limit",
	"unavailable",
}

// SanitizeError returns a client-safe error message.
// Internal details are logged but not exposed to clients.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())

	for _, pattern := range internalErrorPatterns {
		if strings.Contains(errStr, strings.ToLower(pattern)) {
			logger.Error("%s failed (internal): %v", operation, err)
			return fmt.Errorf("%s failed: internal error", operation)
		}
	}

	for _, pattern := range userFacingPatterns {
		if strings.Contains(errStr, pattern) {
			return err
		}
	}

	logger.Error("%s failed: %v", operation, err)
	if len(err.Error()) < 80 {
		return err
	}
	return fmt.Errorf("%s failed: an unexpected error occurred", operation)
}
