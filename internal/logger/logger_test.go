package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerWritesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer

	l := New(&buf, "info").With("component", "booking")
	l.LogInfo("estimate %s saved", "est-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unexpected log line %q: %v", buf.String(), err)
	}

	if line["level"] != "info" {
		t.Errorf("level = %v, want info", line["level"])
	}

	if line["message"] != "estimate est-1 saved" {
		t.Errorf("message = %v", line["message"])
	}

	if line["component"] != "booking" {
		t.Errorf("component = %v, want booking", line["component"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer

	l := New(&buf, "warn")
	l.LogInfo("dropped")
	l.LogDebugf("dropped")

	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	l.LogErrorf("kept %d", 1)

	if buf.Len() == 0 {
		t.Fatal("expected error line to be written")
	}
}
