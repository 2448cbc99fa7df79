package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWithWriterTagsApp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "LastWill", "debug")
	logger.Debug("hello", "will", "0xabc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["app"] != "LastWill" || record["will"] != "0xabc" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := ParseLevel("loud"); got != slog.LevelInfo {
		t.Fatalf("expected info, got %s", got)
	}
	if got := ParseLevel("warn"); got != slog.LevelWarn {
		t.Fatalf("expected warn, got %s", got)
	}
}
