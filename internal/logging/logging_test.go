package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewJSONAndSet(t *testing.T) {
	var buf bytes.Buffer
	l := New("json", slog.LevelDebug, &buf)
	prev := L()
	Set(l)
	defer Set(prev)
	Component("codec").Debug("frame_decoded", "can_id", "0x501")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "frame_decoded" || rec["component"] != "codec" {
		t.Fatalf("unexpected record %v", rec)
	}
	Set(nil)
	if L() != l {
		t.Fatalf("Set(nil) must keep current logger")
	}
}
