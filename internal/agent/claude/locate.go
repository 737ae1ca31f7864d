package claude

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// defaultBinary is the agent executable looked up on PATH when no
// explicit command is configured.
const defaultBinary = "claude"

var (
	locateMu   sync.Mutex
	locatedBin string
)

// locateBinary resolves the agent executable. An explicit command is
// verified as-is. The PATH lookup result is cached only on success, so
// a transient failure is retried on the next call.
func locateBinary(command string) (string, error) {
	if command != "" {
		if _, err := os.Stat(command); err == nil {
			return command, nil
		}
		if path, err := exec.LookPath(command); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("agent executable not found: %s", command)
	}

	locateMu.Lock()
	defer locateMu.Unlock()

	if locatedBin != "" {
		return locatedBin, nil
	}

	path, err := exec.LookPath(defaultBinary)
	if err != nil {
		return "", fmt.Errorf("agent executable not found on PATH: %w", err)
	}
	locatedBin = path
	return path, nil
}

// resetLocator clears the cached lookup. Used by tests.
func resetLocator() {
	locateMu.Lock()
	defer locateMu.Unlock()
	locatedBin = ""
}
