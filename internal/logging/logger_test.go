package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	return slog.New(newConsoleHandler(buf, lvl, false)), buf
}

func TestConsoleHandlerLineShape(t *testing.T) {
	logger, buf := newBufferLogger()

	logger.Info("job accepted", String(FieldURL, "https://example.com/a"), Int("slots", 3))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO ") {
		t.Errorf("expected INFO label in %q", line)
	}
	if !strings.Contains(line, "job accepted") {
		t.Errorf("expected message in %q", line)
	}
	if !strings.Contains(line, "url=https://example.com/a") {
		t.Errorf("expected url attr in %q", line)
	}
	if !strings.Contains(line, "slots=3") {
		t.Errorf("expected int attr in %q", line)
	}
}

func TestConsoleHandlerComponentPrefix(t *testing.T) {
	logger, buf := newBufferLogger()

	NewComponentLogger(logger, "orchestrator").Warn("slot wait")

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "orchestrator: slot wait") {
		t.Errorf("expected component prefix in %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component must not repeat as key=value in %q", line)
	}
}

func TestConsoleHandlerQuotesAndGroups(t *testing.T) {
	logger, buf := newBufferLogger()

	logger.WithGroup("ledger").Error("write failed",
		String("reason", "disk full"),
		slog.Group("db", Int64("retries", 2)))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `ledger.reason="disk full"`) {
		t.Errorf("expected quoted grouped attr in %q", line)
	}
	if !strings.Contains(line, "ledger.db.retries=2") {
		t.Errorf("expected nested group key in %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"trace":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", input, want, got)
		}
	}
}
