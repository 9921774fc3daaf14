package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCrashHandler_SetContext(t *testing.T) {
	globalContext = &CrashContext{}

	SetBasePath("/tmp/test-engram")
	SetVersion("1.0.0-test")
	SetLastTool("hybrid_search")

	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	if globalContext.basePath != "/tmp/test-engram" {
		t.Errorf("basePath = %q, want /tmp/test-engram", globalContext.basePath)
	}
	if globalContext.version != "1.0.0-test" {
		t.Errorf("version = %q, want 1.0.0-test", globalContext.version)
	}
	if globalContext.lastTool != "hybrid_search" {
		t.Errorf("lastTool = %q, want hybrid_search", globalContext.lastTool)
	}
}

func TestCrashHandler_CreateCrashReport(t *testing.T) {
	globalContext = &CrashContext{
		version:  "1.0.0",
		lastTool: "delete_edge",
	}

	report := createCrashReport("test panic")

	if report.PanicValue != "test panic" {
		t.Errorf("PanicValue = %q, want 'test panic'", report.PanicValue)
	}
	if report.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", report.Version)
	}
	if report.LastTool != "delete_edge" {
		t.Errorf("LastTool = %q, want delete_edge", report.LastTool)
	}
	if report.StackTrace == "" {
		t.Error("expected non-empty StackTrace")
	}
	if report.GoVersion == "" {
		t.Error("expected non-empty GoVersion")
	}
}

func TestCrashHandler_FormatCrashReport(t *testing.T) {
	report := CrashReport{
		Timestamp:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Version:    "1.0.0",
		LastTool:   "graph_add_edge",
		PanicValue: "test panic",
		StackTrace: "goroutine 1 [running]:\nmain.main()",
		GoVersion:  "go1.24.6",
		OS:         "linux",
		Arch:       "amd64",
	}

	formatted := formatCrashReport(report)

	expectedStrings := []string{
		"ENGRAM CRASH REPORT",
		"Timestamp: 2025-01-01T12:00:00Z",
		"Version:   1.0.0",
		"Go:        go1.24.6",
		"OS/Arch:   linux/amd64",
		"Last tool: graph_add_edge",
		"PANIC VALUE",
		"test panic",
		"STACK TRACE",
		"goroutine 1 [running]",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(formatted, expected) {
			t.Errorf("expected formatted report to contain %q", expected)
		}
	}
}

func TestCrashHandler_FormatOmitsToolWhenUnset(t *testing.T) {
	report := CrashReport{
		Timestamp:  time.Now(),
		PanicValue: "boom",
		StackTrace: "stack",
	}

	if strings.Contains(formatCrashReport(report), "Last tool:") {
		t.Error("report should omit the tool line when no tool was dispatched")
	}
}

func TestCrashHandler_WriteCrashReport(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), ".engram")
	globalContext = &CrashContext{
		basePath: basePath,
		version:  "1.0.0",
	}

	report := CrashReport{
		Timestamp:  time.Now(),
		Version:    "1.0.0",
		PanicValue: "test panic",
		StackTrace: "test stack",
		GoVersion:  "go1.24",
		OS:         "test",
		Arch:       "test",
	}

	if err := writeCrashReport(report); err != nil {
		t.Fatalf("writeCrashReport failed: %v", err)
	}

	// Reports share the logs directory with the debug logger
	logsDir := filepath.Join(basePath, "logs")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		t.Error("expected logs directory to be created")
	}

	reports, err := ListCrashReports()
	if err != nil {
		t.Fatalf("ListCrashReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 crash report, got %d", len(reports))
	}

	content, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(content), "test panic") {
		t.Error("expected crash report to contain the panic value")
	}
}

func TestCrashHandler_CleanOldReports(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), ".engram")
	logsDir := filepath.Join(basePath, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	globalContext = &CrashContext{basePath: basePath}

	for i := 0; i < MaxCrashReports+5; i++ {
		filename := filepath.Join(logsDir, fmt.Sprintf("crash_20250101_12%02d00.log", i))
		if err := os.WriteFile(filename, []byte("test"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	// Debug log files in the same directory must survive crash pruning
	debugFile := filepath.Join(logsDir, "debug-20250101T120000Z.log")
	if err := os.WriteFile(debugFile, []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := cleanOldCrashReports(logsDir); err != nil {
		t.Fatalf("cleanOldCrashReports failed: %v", err)
	}

	reports, err := ListCrashReports()
	if err != nil {
		t.Fatalf("ListCrashReports failed: %v", err)
	}
	if len(reports) != MaxCrashReports {
		t.Errorf("expected %d crash reports after cleanup, got %d", MaxCrashReports, len(reports))
	}
	if _, err := os.Stat(debugFile); err != nil {
		t.Errorf("debug log should survive crash pruning: %v", err)
	}
}

func TestCrashHandler_ReportPath(t *testing.T) {
	globalContext = &CrashContext{basePath: "/tmp/test"}

	testTime := time.Date(2025, 1, 15, 14, 30, 45, 0, time.UTC)
	path := getCrashReportPath(testTime)

	if expected := "/tmp/test/logs/crash_20250115_143045.log"; path != expected {
		t.Errorf("path = %q, want %q", path, expected)
	}
}

func TestCrashHandler_DefaultBasePath(t *testing.T) {
	globalContext = &CrashContext{}

	if dir := getCrashReportDir(); dir != filepath.Join(".engram", "logs") {
		t.Errorf("default dir = %q, want .engram/logs", dir)
	}
}

func TestHandlePanic_WritesReportAndReRaises(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), ".engram")
	globalContext = &CrashContext{basePath: basePath, version: "test"}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected HandlePanic to re-raise the panic")
		}
		if r != "serve loop blew up" {
			t.Errorf("recovered %v, want the original panic value", r)
		}

		reports, err := ListCrashReports()
		if err != nil {
			t.Fatalf("ListCrashReports failed: %v", err)
		}
		if len(reports) != 1 {
			t.Fatalf("expected 1 crash report, got %d", len(reports))
		}
	}()

	defer HandlePanic()
	panic("serve loop blew up")
}
