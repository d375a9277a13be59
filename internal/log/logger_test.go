package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T, level Level, format Format) *bytes.Buffer {
	t.Helper()
	var buffer bytes.Buffer
	SetOutput(&buffer)
	SetFormat(format)
	SetLevel(level)
	t.Cleanup(func() {
		SetLevel(LevelNone)
		SetFormat(FormatConsole)
		SetOutput(nil)
	})
	return &buffer
}

func TestLevelFiltering(t *testing.T) {
	buffer := capture(t, LevelWarning, FormatConsole)
	Debug("debug %d", 1)
	Info("info %d", 2)
	Warning("warning %d", 3)
	Error("error %d", 4)

	out := buffer.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below threshold were logged: %q", out)
	}
	if !strings.Contains(out, "warning 3") || !strings.Contains(out, "error 4") {
		t.Errorf("expected warning and error messages, got %q", out)
	}
}

func TestLevelNoneDisablesLogging(t *testing.T) {
	buffer := capture(t, LevelNone, FormatConsole)
	Error("should not appear")
	if buffer.Len() != 0 {
		t.Errorf("expected no output, got %q", buffer.String())
	}
}

func TestJSONFormat(t *testing.T) {
	buffer := capture(t, LevelDebug, FormatJSON)
	Info("connected to %s", "AA:BB")

	var line map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %s (%q)", err, buffer.String())
	}
	if line["level"] != "info" {
		t.Errorf("unexpected level %v", line["level"])
	}
	if line["message"] != "connected to AA:BB" {
		t.Errorf("unexpected message %v", line["message"])
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatConsole {
		t.Errorf("ParseFormat('') = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
