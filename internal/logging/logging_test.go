package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("level %v did not round trip: %v, %v", level, parsed, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	cfg := DefaultConfig()
	if cfg.Component != "wlime" {
		t.Errorf("expected component wlime, got %q", cfg.Component)
	}
	if cfg.Rotate.Path != "/state/wlime/wlime.log" {
		t.Errorf("unexpected log path %q", cfg.Rotate.Path)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"text", true},
		{"TEXT", true},
		{"preedit", true},
		{"char", true},
		{"surrounding_text", true},
		{"password", true},
		{"api_key", true},
		{"auth_token", true},
		{"private_key", true},
		{"keycode", false},
		{"keycodes", false},
		{"session_active", false},
		{"seat", false},
		{"context", false},
		{"error", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelInfo,
		Format:    format,
		Component: "test",
		Writer:    &buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger, &buf
}

func TestJSONFormatRedactsTypedText(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatJSON)

	logger.Info("commit", "text", "hunter2", "keycode", 38)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON output %q: %v", buf.String(), err)
	}
	if entry["text"] != Redacted {
		t.Errorf("text not redacted: %v", entry["text"])
	}
	if entry["keycode"] != float64(38) {
		t.Errorf("keycode should be kept: %v", entry["keycode"])
	}
	if entry["component"] != "test" {
		t.Errorf("expected component test, got %v", entry["component"])
	}
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatText)
	child := logger.WithComponent("grab")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}

	logger.SetLevel(LevelDebug)
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug not logged after SetLevel: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "component=grab") {
		t.Errorf("missing child component: %q", buf.String())
	}
	if logger.Level() != LevelDebug {
		t.Errorf("expected debug level, got %v", logger.Level())
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "wlime.log")
	logger, err := New(&Config{
		Level:  LevelInfo,
		Output: "file",
		Rotate: RotateConfig{Path: logPath, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("hello")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(RotateConfig{
		Path:       logPath,
		MaxSizeMB:  1,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	chunk := bytes.Repeat([]byte("x"), 600<<10)
	for i := 0; i < 5; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backups, err := rotator.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 backups after cleanup, got %d: %v", len(backups), backups)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("active log missing: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("active log should hold the last chunk, got %d bytes", info.Size())
	}
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(RotateConfig{Path: logPath, MaxSizeMB: 1, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("y"), 700<<10)
	rotator.Write(chunk)
	rotator.Write(chunk)
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backups, err := rotator.Backups()
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".log.gz") {
		t.Errorf("expected one gzip backup, got %v", backups)
	}
}

func TestCrashReport(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.0.0", "test", nil)

	path, err := handler.Report("boom", []byte("stack"))
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("report written outside crash dir: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report CrashReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.PanicValue != "boom" || report.Version != "1.0.0" || report.Component != "test" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.StackTrace != "stack" {
		t.Errorf("unexpected stack %q", report.StackTrace)
	}
}

func TestCrashHandlerRecoverRepanics(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.0.0", "test", nil)

	defer func() {
		if r := recover(); r != "intentional" {
			t.Errorf("expected re-panic with original value, got %v", r)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("expected one crash report, got %d", len(entries))
		}
	}()

	func() {
		defer handler.Recover()
		panic("intentional")
	}()
}
