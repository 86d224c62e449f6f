package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriter_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{File: FileConfig{Dir: dir}}
	w := cfg.FileWriter("kernel")
	if w == nil {
		t.Fatalf("expected writer when Dir is set")
	}
	_, _ = w.Write([]byte("hello\n"))
	_ = w.Close()
	if _, err := os.Stat(filepath.Join(dir, "kernel.log")); err != nil {
		t.Fatalf("log not created at derived path: %v", err)
	}
}

func TestFileWriter_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "explicit.log")
	cfg := Config{File: FileConfig{Dir: filepath.Join(dir, "ignored"), Path: p}}
	w := cfg.FileWriter("kernel")
	_, _ = w.Write([]byte("x"))
	_ = w.Close()
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("explicit path not created: %v", err)
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	if w := (Config{}).FileWriter("n"); w != nil {
		t.Fatalf("expected nil writer without Dir or Path")
	}
	w := Config{File: FileConfig{Path: "x"}}.FileWriter("n")
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
}

func TestFileWriter_Overrides(t *testing.T) {
	cfg := Config{File: FileConfig{Path: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}}
	l := cfg.FileWriter("n").(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[Level]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewSloggerJSONWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Format: FormatJSON}}
	log := cfg.NewSloggerTo(&buf, "t")
	log.Debug("tick", slog.Int("pid", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "tick" || rec["pid"] != float64(3) {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["time"]; ok {
		t.Fatalf("time should be dropped when TimeStamps=false")
	}
}

func TestNewSloggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelWarn}}
	log := cfg.NewSloggerTo(&buf, "t")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering failed: %q", buf.String())
	}
}

func TestColorHandlerKeepsColorOnDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Color: true}}
	log := cfg.NewSloggerTo(&buf, "t").With("component", "scheduler")
	log.Error("boom")
	out := buf.String()
	// TextHandler may quote the escape sequence, so match the colour code loosely.
	if !strings.Contains(out, "[31m") || !strings.Contains(out, "ERROR") {
		t.Fatalf("missing colour prefix: %q", out)
	}
	if !strings.Contains(out, "component=scheduler") {
		t.Fatalf("missing attrs: %q", out)
	}
}

func TestNewSloggerMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	cfg := Config{
		Slog: SlogConfig{Level: LevelInfo, Color: true},
		File: FileConfig{Dir: dir},
	}
	log := cfg.NewSloggerTo(&buf, "kernel")
	log.Info("booted", slog.String("version", "1.0"))

	b, err := os.ReadFile(filepath.Join(dir, "kernel.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "booted") || strings.Contains(string(b), "[32m") {
		t.Fatalf("file output should be plain text: %q", string(b))
	}
	if !strings.Contains(buf.String(), "booted") {
		t.Fatalf("console output missing: %q", buf.String())
	}
}
