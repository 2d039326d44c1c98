package subprocess

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/wagiedev/mcpstdio/internal/errors"
)

const (
	// maxScanTokenSize is the default maximum size of one stdout line.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (lines are still logged),
	// but the buffer stops growing after this limit to prevent unbounded memory usage.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB
)

var errNotObject = stderrors.New("message is not a JSON object")

// newLineScanner returns a scanner that yields one stdout line per token.
func newLineScanner(r io.Reader, maxSize int) *bufio.Scanner {
	if maxSize <= 0 {
		maxSize = maxScanTokenSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(maxSize, 64*1024)), maxSize)

	return scanner
}

// decodeLine parses one stdout line into a JSON object.
// It reports ok=false for blank lines, which carry no message.
func decodeLine(line []byte) (msg map[string]any, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false, nil
	}

	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, true, &errors.ProtocolDecodeError{RawData: string(line), Err: err}
	}

	if msg == nil {
		return nil, true, &errors.ProtocolDecodeError{RawData: string(line), Err: errNotObject}
	}

	return msg, true, nil
}

// cleanStderr drops JVM stack frames from server stderr, keeping the
// exception messages and any other diagnostic output.
func cleanStderr(stderr string) string {
	if stderr == "" {
		return ""
	}

	var cleaned strings.Builder

	for line := range strings.SplitSeq(stderr, "\n") {
		if isStackFrameLine(strings.TrimSpace(line)) {
			continue
		}

		if cleaned.Len() > 0 {
			cleaned.WriteString("\n")
		}

		cleaned.WriteString(line)
	}

	return strings.TrimSpace(cleaned.String())
}

// isStackFrameLine matches "at pkg.Class.method(File.java:42)" and
// "... 12 more" lines of a Java stack trace.
func isStackFrameLine(line string) bool {
	if rest, ok := strings.CutPrefix(line, "at "); ok {
		return strings.Contains(rest, "(") && strings.HasSuffix(rest, ")")
	}

	if rest, ok := strings.CutPrefix(line, "... "); ok {
		count, ok := strings.CutSuffix(rest, " more")
		if !ok || count == "" {
			return false
		}

		for _, ch := range count {
			if ch < '0' || ch > '9' {
				return false
			}
		}

		return true
	}

	return false
}
