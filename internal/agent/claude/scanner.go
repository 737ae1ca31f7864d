package claude

import (
	"bufio"
	"io"
)

// newLineScanner builds a line scanner sized for agent output. A single
// NDJSON line can carry large tool payloads, so the token buffer is
// raised well past the bufio default. The scanner also yields a final
// line with no trailing newline, which covers the flush-on-exit case.
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)
	return scanner
}
