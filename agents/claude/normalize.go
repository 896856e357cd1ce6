package claude

import (
	"encoding/json"
	"time"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/workspace/agentcore/eventlog"
)

// envelope is the outer Claude Code stream-json shape: decode this first
// (cheap, tolerant of unknown fields), then switch on Type per
// SPEC_FULL.md §4.4's normalize_logs additive detail.
type envelope struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message *messageBody    `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// toolCallMetadata is the tool name and raw JSON input of a tool call,
// kept as a local struct rather than an acp-go-sdk type.
type toolCallMetadata struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// NormalizeLogs decodes one line of Claude Code stream-json output into
// zero or more NormalizedEvents. Unparseable lines become a single
// Error{kind: Parse} event rather than a returned error, per the
// AgentExecutor contract's normalize_logs row.
func NormalizeLogs(line []byte, ts time.Time, agentType string) []eventlog.NormalizedEvent {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return []eventlog.NormalizedEvent{eventlog.NewErrorEvent(agentType, eventlog.ErrorKindParse, err.Error())}
	}

	switch env.Type {
	case "assistant", "user":
		return normalizeMessage(env, ts, agentType)
	case "result":
		return []eventlog.NormalizedEvent{{
			Timestamp: ts,
			Type:      eventlog.EntrySystem,
			Content:   string(env.Result),
			AgentType: agentType,
		}}
	case "system":
		return []eventlog.NormalizedEvent{{
			Timestamp: ts,
			Type:      eventlog.EntrySystem,
			Content:   env.Subtype,
			AgentType: agentType,
		}}
	default:
		return nil
	}
}

func normalizeMessage(env envelope, ts time.Time, agentType string) []eventlog.NormalizedEvent {
	if env.Message == nil {
		return nil
	}
	var blocks []rawBlock
	if err := json.Unmarshal(env.Message.Content, &blocks); err != nil {
		return []eventlog.NormalizedEvent{eventlog.NewErrorEvent(agentType, eventlog.ErrorKindParse, err.Error())}
	}

	entryType := eventlog.EntryOutput
	if env.Message.Role == "user" {
		entryType = eventlog.EntryInput
	}

	var events []eventlog.NormalizedEvent
	for _, b := range blocks {
		switch b.Type {
		case "text":
			events = append(events, eventlog.NormalizedEvent{
				Timestamp: ts,
				Type:      entryType,
				Content:   b.Text,
				Metadata:  acpsdk.TextBlock(b.Text),
				AgentType: agentType,
			})
		case "thinking":
			events = append(events, eventlog.NormalizedEvent{
				Timestamp: ts,
				Type:      eventlog.EntryThinking,
				Content:   b.Text,
				AgentType: agentType,
			})
		case "tool_use":
			events = append(events, eventlog.NormalizedEvent{
				Timestamp: ts,
				Type:      eventlog.EntryAction,
				AgentType: agentType,
				Metadata:  toolCallMetadata{Name: b.Name, Input: b.Input},
				Action:    &eventlog.Action{Tool: b.Name, Arguments: json.RawMessage(b.Input)},
			})
		}
	}
	return events
}
