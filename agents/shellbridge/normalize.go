package shellbridge

import (
	"time"

	"github.com/workspace/agentcore/eventlog"
)

// NormalizeLogs turns one line of raw pty output into a single Output
// event. Unlike the claude/cursor bindings, a pty-backed child speaks no
// structured dialect at all — every line the terminal emits, including
// shell prompts and echoed input, becomes content verbatim. A host that
// needs to strip ANSI escape sequences or shell chrome does so downstream
// of the LogStore; normalize_logs only owns the CLI-dialect-to-taxonomy
// mapping, and a pty has no dialect to map.
func NormalizeLogs(line []byte, ts time.Time, agentType string) []eventlog.NormalizedEvent {
	if len(line) == 0 {
		return nil
	}
	return []eventlog.NormalizedEvent{{
		Timestamp: ts,
		Type:      eventlog.EntryOutput,
		Content:   string(line),
		AgentType: agentType,
	}}
}
