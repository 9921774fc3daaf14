package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestInitStderr(t *testing.T) {
	prevWriter := log.Writer()
	prevPrefix := log.Prefix()
	prevFlags := log.Flags()
	defer func() {
		log.SetOutput(prevWriter)
		log.SetPrefix(prevPrefix)
		log.SetFlags(prevFlags)
	}()

	InitStderr()

	if log.Prefix() != StderrPrefix {
		t.Errorf("prefix = %q, want %q", log.Prefix(), StderrPrefix)
	}
	if log.Flags()&log.Lmsgprefix == 0 {
		t.Error("expected Lmsgprefix so the prefix sits next to the message")
	}
}

func TestNewDebugLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.LogPath() == "" {
		t.Error("LogPath() should not be empty")
	}

	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file should exist at %s", logger.LogPath())
	}

	// Check symlink was created
	latestLink := filepath.Join(tmpDir, "debug-latest.log")
	if _, err := os.Lstat(latestLink); os.IsNotExist(err) {
		t.Error("debug-latest.log symlink should exist")
	}
}

func TestDebugLoggerCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	logsDir := filepath.Join(tmpDir, "nested", "logs")

	logger, err := NewDebugLogger(Options{
		OutputDir:    logsDir,
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		t.Error("Logs directory should be created")
	}
}

func TestLogMethods(t *testing.T) {
	tmpDir := t.TempDir()
	var stderrBuf bytes.Buffer

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: true,
		StderrWriter: &stderrBuf,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	logger.Debug("test_debug", "Debug message", map[string]any{"key": "value"})
	logger.Info("test_info", "Info message", nil)
	logger.Warn("test_warn", "Warn message", nil)
	logger.Error("test_error", "Error message", nil)

	// Close to flush
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 log lines, got %d", len(lines))
	}

	expectedLevels := []string{"debug", "info", "warn", "error"}
	expectedEvents := []string{"test_debug", "test_info", "test_warn", "test_error"}

	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("Line %d is not valid JSON: %v", i, err)
			continue
		}

		if entry.Timestamp == "" {
			t.Errorf("Line %d missing timestamp", i)
		}
		if string(entry.Level) != expectedLevels[i] {
			t.Errorf("Line %d: expected level %s, got %s", i, expectedLevels[i], entry.Level)
		}
		if entry.Event != expectedEvents[i] {
			t.Errorf("Line %d: expected event %s, got %s", i, expectedEvents[i], entry.Event)
		}
		if entry.Component != "serve" {
			t.Errorf("Line %d: expected component serve, got %s", i, entry.Component)
		}
	}

	var first LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if first.Metadata["key"] != "value" {
		t.Errorf("Metadata not preserved: %v", first.Metadata)
	}

	// Stderr mirror carries the same entries
	stderrContent := stderrBuf.String()
	if !strings.Contains(stderrContent, "test_debug") {
		t.Error("Stderr should contain debug log")
	}
	if !strings.Contains(stderrContent, "test_info") {
		t.Error("Stderr should contain info log")
	}
}

func TestErrorWithErr(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: false,
		Component:    "retrieval",
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	logger.ErrorWithErr("embed_failed", "embedding request failed", fmt.Errorf("connection refused"), map[string]any{"model": "test"})
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if entry.Level != LevelError {
		t.Errorf("Expected error level, got %s", entry.Level)
	}
	if entry.Error != "connection refused" {
		t.Errorf("Expected error field, got %q", entry.Error)
	}
	if entry.Component != "retrieval" {
		t.Errorf("Expected component retrieval, got %s", entry.Component)
	}
}

func TestStartPhase(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	stop := logger.StartPhase("migrate_schema", map[string]any{"database": "test"})
	time.Sleep(10 * time.Millisecond)
	stop(nil)

	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines (phase_start, phase_end), got %d", len(lines))
	}

	var startEntry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &startEntry); err != nil {
		t.Errorf("phase_start is not valid JSON: %v", err)
	}
	if startEntry.Event != "phase_start" {
		t.Errorf("Expected phase_start event, got %s", startEntry.Event)
	}
	if startEntry.Phase != "migrate_schema" {
		t.Errorf("Expected phase migrate_schema, got %s", startEntry.Phase)
	}

	var endEntry LogEntry
	if err := json.Unmarshal([]byte(lines[1]), &endEntry); err != nil {
		t.Errorf("phase_end is not valid JSON: %v", err)
	}
	if endEntry.Event != "phase_end" {
		t.Errorf("Expected phase_end event, got %s", endEntry.Event)
	}
	if endEntry.DurationMs == nil {
		t.Error("phase_end should have duration_ms")
	} else if *endEntry.DurationMs < 10 {
		t.Errorf("Duration should be at least 10ms, got %d", *endEntry.DurationMs)
	}
}

func TestStartPhaseWithError(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	stop := logger.StartPhase("failing_phase", nil)
	stop(os.ErrNotExist)

	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}

	var errorEntry LogEntry
	if err := json.Unmarshal([]byte(lines[1]), &errorEntry); err != nil {
		t.Errorf("phase_error is not valid JSON: %v", err)
	}
	if errorEntry.Event != "phase_error" {
		t.Errorf("Expected phase_error event, got %s", errorEntry.Event)
	}
	if errorEntry.Level != LevelError {
		t.Errorf("Expected error level, got %s", errorEntry.Level)
	}
}

func TestConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewDebugLogger(Options{
		OutputDir:    tmpDir,
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Info("concurrent_write", "Message", map[string]any{"goroutine": n, "iteration": j})
			}
		}(i)
	}
	wg.Wait()

	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 100 {
		t.Errorf("Expected 100 log lines, got %d", len(lines))
	}

	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("Line %d is not valid JSON: %v\nContent: %s", i, err, line)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, err := NewDebugLogger(Options{
		OutputDir:    t.TempDir(),
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	logger.Info("event", "message", nil)

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
}

func TestFilePermissions(t *testing.T) {
	logger, err := NewDebugLogger(Options{
		OutputDir:    t.TempDir(),
		EnableStderr: false,
	})
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	defer logger.Close()

	info, err := os.Stat(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to stat log file: %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected permissions 0600, got %o", perm)
	}
}

func TestPruneLogFiles(t *testing.T) {
	tmpDir := t.TempDir()

	names := []string{
		"debug-20250101T100000Z.log",
		"debug-20250102T100000Z.log",
		"debug-20250103T100000Z.log",
		"debug-20250104T100000Z.log",
		"debug-20250105T100000Z.log",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("{}"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	// The symlink alias and unrelated files are never pruned
	if err := os.WriteFile(filepath.Join(tmpDir, "debug-latest.log"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "crash_20250101_100000.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := PruneLogFiles(tmpDir, 2); err != nil {
		t.Fatalf("PruneLogFiles failed: %v", err)
	}

	for _, name := range names[:3] {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be pruned", name)
		}
	}
	for _, name := range names[3:] {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); err != nil {
			t.Errorf("expected %s to survive: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "debug-latest.log")); err != nil {
		t.Errorf("debug-latest.log should survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "crash_20250101_100000.log")); err != nil {
		t.Errorf("crash reports should survive log pruning: %v", err)
	}
}

func TestPruneLogFilesKeepsAllWhenUnderLimit(t *testing.T) {
	tmpDir := t.TempDir()

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("debug-2025010%dT100000Z.log", i+1)
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("{}"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	if err := PruneLogFiles(tmpDir, 5); err != nil {
		t.Fatalf("PruneLogFiles failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected all 3 files to survive, got %d", len(entries))
	}
}
