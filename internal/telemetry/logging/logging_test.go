package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInfoCtxWritesWithoutCorrelationWhenNoSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := New(base)

	logger.InfoCtx(context.Background(), "fetch started", "url", "https://example.com")

	out := buf.String()
	if !strings.Contains(out, "fetch started") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if strings.Contains(out, "trace_id") {
		t.Fatalf("did not expect trace_id without an active span, got %q", out)
	}
}

func TestErrorLogsWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := New(base)

	logger.Error("engine failed", "engine", "http")
	if !strings.Contains(buf.String(), "engine failed") {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
}

func TestNewFallsBackToDefaultWhenNilBase(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Fatalf("expected a non-nil logger")
	}
}
