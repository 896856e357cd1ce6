package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)
	logger.Info("hello", "session_id", "s1")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"session_id":"s1"`) {
		t.Errorf("expected structured field, got %q", out)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "text", &buf)
	logger.Info("hello")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("expected text output, got JSON-looking %q", out)
	}
	if !strings.Contains(out, "msg=hello") {
		t.Errorf("expected text handler key=value output, got %q", out)
	}
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "text", &buf)
	logger.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info log to be suppressed at warn level, got %q", buf.String())
	}
	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Errorf("expected warn log to appear")
	}
}
