package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"
)

// CrashReport is written to the crash directory when the daemon panics.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
	Component    string    `json:"component,omitempty"`
}

// CrashHandler records panics as JSON reports before re-panicking.
type CrashHandler struct {
	dir       string
	version   string
	component string
	log       *slog.Logger
}

// DefaultCrashDir returns $XDG_STATE_HOME/wlime/crashes.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler returns a handler writing to dir. Empty dir selects
// DefaultCrashDir.
func NewCrashHandler(dir, version, component string, log *slog.Logger) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	if log == nil {
		log = slog.Default()
	}
	return &CrashHandler{dir: dir, version: version, component: component, log: log}
}

// Recover is deferred at the top of a goroutine. A panic is reported
// and then resumed so the process still exits.
//
//	defer crash.Recover()
func (h *CrashHandler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	path, err := h.Report(r, debug.Stack())
	if err != nil {
		h.log.Error("write crash report", slog.Any("error", err))
	} else {
		h.log.Error("crashed", slog.Any("panic", r), slog.String("report", path))
	}
	panic(r)
}

// Report writes a crash report for panicValue and returns its path.
func (h *CrashHandler) Report(panicValue any, stack []byte) (string, error) {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(panicValue),
		StackTrace:   string(stack),
		Component:    h.component,
	}

	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	path := filepath.Join(h.dir, fmt.Sprintf("crash-%s-%s.json",
		h.component, report.Timestamp.Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}
