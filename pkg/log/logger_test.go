package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newCapturedLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(level),
		WithFormatter(f),
		WithOutput(NewWriterOutput(&buf)),
	)
	return l, &buf
}

func TestLevelGating(t *testing.T) {
	l, buf := newCapturedLogger(WarnLevel, &TextFormatter{})
	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("low-level entries should be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing, got %q", out)
	}
}

func TestJSONFormatterFields(t *testing.T) {
	l, buf := newCapturedLogger(InfoLevel, &JSONFormatter{})
	l.Info("claimed batch", F("queue", "orders"), Int("count", 3))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output not valid JSON: %v (%q)", err, buf.String())
	}
	if m["msg"] != "claimed batch" {
		t.Fatalf("msg = %v", m["msg"])
	}
	if m["level"] != "INFO" {
		t.Fatalf("level = %v", m["level"])
	}
	if m["queue"] != "orders" {
		t.Fatalf("queue = %v", m["queue"])
	}
	if m["count"] != float64(3) {
		t.Fatalf("count = %v", m["count"])
	}
}

func TestWithCarriesFields(t *testing.T) {
	l, buf := newCapturedLogger(InfoLevel, &JSONFormatter{})
	ql := l.With(Str("queue", "jobs")).WithComponent("scheduler")
	ql.Info("promoted")

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["queue"] != "jobs" {
		t.Fatalf("queue field not carried: %v", m)
	}
	if m["component"] != "scheduler" {
		t.Fatalf("component field not carried: %v", m)
	}
}

func TestErrField(t *testing.T) {
	l, buf := newCapturedLogger(InfoLevel, &TextFormatter{})
	l.Error("sweep failed", Err(errors.New("connection refused")))
	if !strings.Contains(buf.String(), "error=connection refused") {
		t.Fatalf("error field missing: %q", buf.String())
	}
}

func TestTextFormatterSortsKeys(t *testing.T) {
	l, buf := newCapturedLogger(InfoLevel, &TextFormatter{})
	l.Info("m", F("b", 2), F("a", 1))
	out := buf.String()
	if !strings.Contains(out, "a=1 b=2") {
		t.Fatalf("fields not in sorted order: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
