package cursor

import (
	"encoding/json"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/workspace/agentcore/eventlog"
)

// envelope is Cursor Agent's stream-json output shape: mostly a flatter
// dialect than Claude Code's (a single text or tool-call field per event
// instead of Claude's hook/control machinery), except that assistant turns
// are still wrapped one level deep in a "message" object carrying either a
// bare string or a Claude-style content-block array, per the `assistant`
// case below. Decoded per SPEC_FULL.md §4.4's normalize_logs additive
// detail: outer envelope first, then a type switch.
type envelope struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	Message  *assistantMessage `json:"message,omitempty"`
	Tool     string           `json:"tool,omitempty"`
	Args     json.RawMessage  `json:"args,omitempty"`
	ExitCode *int             `json:"exit_code,omitempty"`
}

// assistantMessage holds the "assistant" envelope's nested payload. Content
// is decoded loosely since cursor-agent emits either a bare string or a
// Claude-style array of content blocks depending on version.
type assistantMessage struct {
	Content json.RawMessage `json:"content,omitempty"`
}

// text extracts the plain-text portion of an assistantMessage's content,
// handling both a bare JSON string and an array of {"type":"text",...}
// content blocks; other block kinds (tool_use, image, ...) are skipped.
func (m *assistantMessage) text() string {
	if m == nil || len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return ""
	}
	out := ""
	for _, b := range blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// NormalizeLogs decodes one line of Cursor Agent stream-json output into
// zero or more NormalizedEvents.
func NormalizeLogs(line []byte, ts time.Time, agentType string) []eventlog.NormalizedEvent {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return []eventlog.NormalizedEvent{eventlog.NewErrorEvent(agentType, eventlog.ErrorKindParse, err.Error())}
	}

	switch env.Type {
	case "assistant_message", "text":
		return []eventlog.NormalizedEvent{{
			Timestamp: ts,
			Type:      eventlog.EntryOutput,
			Content:   env.Text,
			Metadata:  acpsdk.TextBlock(env.Text),
			AgentType: agentType,
		}}
	case "assistant":
		text := env.Message.text()
		return []eventlog.NormalizedEvent{{
			Timestamp: ts,
			Type:      eventlog.EntryOutput,
			Content:   text,
			Metadata:  acpsdk.TextBlock(text),
			AgentType: agentType,
		}}
	case "tool_call":
		return []eventlog.NormalizedEvent{{
			Timestamp: ts,
			Type:      eventlog.EntryAction,
			AgentType: agentType,
			Action:    &eventlog.Action{Tool: env.Tool, Arguments: env.Args},
		}}
	case "result":
		code := 0
		if env.ExitCode != nil {
			code = *env.ExitCode
		}
		ev := eventlog.NewSystemEvent(agentType, "cursor-agent run completed")
		ev.Timestamp = ts
		if code != 0 {
			ev = eventlog.NewErrorEvent(agentType, eventlog.ErrorKindProtocol, "cursor-agent exited non-zero")
			ev.Timestamp = ts
		}
		return []eventlog.NormalizedEvent{ev}
	default:
		return nil
	}
}
