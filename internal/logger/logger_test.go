package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextAddsIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWith(&buf, "info", "json")

	ctx := WithSessionID(WithTraceID(context.Background(), "tr-1"), "cli:default")
	FromContext(ctx).Info("dispatched")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"tr-1"`) || !strings.Contains(out, `"session_id":"cli:default"`) {
		t.Fatalf("missing context ids in %s", out)
	}
}
