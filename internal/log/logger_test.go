package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Component: ComponentLedger,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid log line %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	logger.Info("hello", "k", "v")
	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m[FieldComponent] != ComponentLedger {
		t.Errorf("component = %v, want %s", m[FieldComponent], ComponentLedger)
	}
	if m["k"] != "v" {
		t.Errorf("k = %v", m["k"])
	}

	buf.Reset()
	logger.WithComponent(ComponentHTTP).Warn("again")
	m = decodeLine(t, strings.TrimSpace(buf.String()))
	if m[FieldComponent] != ComponentHTTP {
		t.Errorf("component = %v, want %s", m[FieldComponent], ComponentHTTP)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelWarn)
	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	logger.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error record missing: %q", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithTransaction(-1, "", "Expense", "Food", 12.5).
		WithError(nil).
		WithOperation(OpAppend)
	if _, ok := f[FieldIndex]; ok {
		t.Error("negative index should be omitted")
	}
	if _, ok := f[FieldTransactionID]; ok {
		t.Error("empty id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if f[FieldCategory] != "Food" || f[FieldAmount] != 12.5 {
		t.Errorf("unexpected fields %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(f))
	}

	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Errorf("error = %v", f[FieldError])
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo).With(FieldRequestID, "req-1")

	ctx := NewContext(context.Background(), logger)
	got := FromContext(ctx)
	if got != logger {
		t.Fatal("logger not found in context")
	}
	got.Info("inside")
	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m[FieldRequestID] != "req-1" {
		t.Errorf("request_id = %v", m[FieldRequestID])
	}
}

func TestFromContextFallback(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger %+v", l)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{500, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(jsonLogger(&buf, slog.LevelDebug))
		r := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		sl.LogHTTPEnd(context.Background(), r, tt.status, 3, "127.0.0.1")
		m := decodeLine(t, strings.TrimSpace(buf.String()))
		if m["level"] != tt.level {
			t.Errorf("status %d: level = %v, want %s", tt.status, m["level"], tt.level)
		}
	}
}
