package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("expected error for invalid level")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected slog.Default()")
	}
	l := Discard()
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestNewWithOptionsDefaults(t *testing.T) {
	l, closer, err := NewWithOptions(Options{})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	if l.Enabled(context.Background(), slog.LevelDebug) || !l.Enabled(context.Background(), slog.LevelInfo) {
		t.Errorf("zero options should log at info")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, _, err := NewWithOptions(Options{Level: "loud"}); err == nil {
		t.Errorf("expected error for invalid level")
	}
}

func TestNewWithOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.log")
	l, closer, err := NewWithOptions(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	l.Debug("hello", "unit_id", "u1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}
}
