package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, maxSize int64) (*DefaultLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: maxSize,
		MaxBackups:  3,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, logPath
}

// readEntries decodes the JSON lines written by the file sink.
func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func findEntry(entries []map[string]interface{}, msg string) map[string]interface{} {
	for _, e := range entries {
		if e["msg"] == msg {
			return e
		}
	}
	return nil
}

func TestNewDefaultLogger(t *testing.T) {
	logger, logPath := newTestLogger(t, 1024)
	defer logger.Close()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestLogLevels(t *testing.T) {
	logger, logPath := newTestLogger(t, 1024*1024)

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warn message", Bool("flag", true))
	logger.Error("error message", errors.New("test error"), Float64("rate", 3.14))
	logger.Close()

	entries := readEntries(t, logPath)

	tests := []struct {
		msg   string
		level string
		key   string
		want  interface{}
	}{
		{"debug message", "DEBUG", "key", "value"},
		{"info message", "INFO", "count", float64(42)},
		{"warn message", "WARN", "flag", true},
		{"error message", "ERROR", "rate", 3.14},
	}

	for _, tt := range tests {
		e := findEntry(entries, tt.msg)
		if e == nil {
			t.Errorf("%q not found in log", tt.msg)
			continue
		}
		if e["level"] != tt.level {
			t.Errorf("%q level = %v, want %s", tt.msg, e["level"], tt.level)
		}
		if e[tt.key] != tt.want {
			t.Errorf("%q field %s = %v, want %v", tt.msg, tt.key, e[tt.key], tt.want)
		}
	}

	errEntry := findEntry(entries, "error message")
	if errEntry != nil {
		if errEntry["error"] != "test error" {
			t.Errorf("error field = %v, want test error", errEntry["error"])
		}
		if _, ok := errEntry["stacktrace"]; !ok {
			t.Error("Stack trace not found for error level")
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  3,
		Level:       LevelWarn,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("kept warn")
	logger.Error("kept error", nil)
	logger.Close()

	entries := readEntries(t, logPath)
	if findEntry(entries, "filtered debug") != nil || findEntry(entries, "filtered info") != nil {
		t.Error("messages below warn should be filtered")
	}
	if findEntry(entries, "kept warn") == nil || findEntry(entries, "kept error") == nil {
		t.Error("warn and error messages should be present")
	}
}

func TestSetLevel(t *testing.T) {
	logger, logPath := newTestLogger(t, 1024*1024)

	logger.Debug("debug before")
	logger.SetLevel(LevelError)
	logger.Debug("debug after")
	logger.Info("info after")
	logger.Warn("warn after")
	logger.Error("error after", nil)
	logger.Close()

	entries := readEntries(t, logPath)
	if findEntry(entries, "debug before") == nil {
		t.Error("Debug before level change should be present")
	}
	for _, msg := range []string{"debug after", "info after", "warn after"} {
		if findEntry(entries, msg) != nil {
			t.Errorf("%q should be filtered after level change", msg)
		}
	}
	if findEntry(entries, "error after") == nil {
		t.Error("Error after level change should be present")
	}
}

func TestLogRotation(t *testing.T) {
	logger, logPath := newTestLogger(t, 100)

	for i := 0; i < 20; i++ {
		logger.Info("This is a test message that should trigger log rotation eventually")
	}
	logger.Close()

	if _, err := os.Stat(logPath + ".1"); os.IsNotExist(err) {
		t.Error("Backup log file was not created after rotation")
	}
	if _, err := os.Stat(logPath + ".5"); !os.IsNotExist(err) {
		t.Error("Backups beyond MaxBackups should be removed")
	}
}

func TestFieldTypes(t *testing.T) {
	logger, logPath := newTestLogger(t, 1024*1024)

	logger.Info("test fields",
		String("str", "hello"),
		Int("int", 42),
		Int64("int64", 1<<40),
		Float64("float", 3.14159),
		Bool("bool", true),
		Err(errors.New("sample error")),
		Any("any", map[string]int{"a": 1}),
	)
	logger.Close()

	e := findEntry(readEntries(t, logPath), "test fields")
	if e == nil {
		t.Fatal("entry not found")
	}
	if e["str"] != "hello" {
		t.Errorf("str = %v", e["str"])
	}
	if e["int"] != float64(42) {
		t.Errorf("int = %v", e["int"])
	}
	if e["int64"] != float64(1<<40) {
		t.Errorf("int64 = %v", e["int64"])
	}
	if e["float"] != 3.14159 {
		t.Errorf("float = %v", e["float"])
	}
	if e["bool"] != true {
		t.Errorf("bool = %v", e["bool"])
	}
	if e["error"] != "sample error" {
		t.Errorf("error = %v", e["error"])
	}
	if m, ok := e["any"].(map[string]interface{}); !ok || m["a"] != float64(1) {
		t.Errorf("any = %v", e["any"])
	}
}

func TestGlobalLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "global.log")

	if err := Init(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  3,
		Level:       LevelDebug,
	}); err != nil {
		t.Fatalf("Failed to initialize global logger: %v", err)
	}

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("global test error"))
	Close()

	entries := readEntries(t, logPath)
	for _, msg := range []string{"global debug", "global info", "global warn", "global error"} {
		if findEntry(entries, msg) == nil {
			t.Errorf("%q not found", msg)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	SetGlobalLogger(nil)

	Debug("test")
	Info("test")
	Warn("test")
	Error("test", nil)

	if GetLogger() == nil {
		t.Error("GetLogger should return noop logger, not nil")
	}
}

func TestConsoleOnlyLogger(t *testing.T) {
	logger, err := NewDefaultLogger(&Config{Level: LevelInfo})
	if err != nil {
		t.Fatalf("logger without file sink: %v", err)
	}
	logger.Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.LogFilePath == "" {
		t.Error("Default log file path should not be empty")
	}
	if config.MaxFileSize <= 0 {
		t.Error("Default max file size should be positive")
	}
	if config.MaxBackups <= 0 {
		t.Error("Default max backups should be positive")
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestErrFieldWithNil(t *testing.T) {
	field := Err(nil)
	if field.Key != "error" {
		t.Errorf("Err(nil).Key = %s, want error", field.Key)
	}
	if field.Value != nil {
		t.Errorf("Err(nil).Value = %v, want nil", field.Value)
	}
}

func TestLogDirectoryCreation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

	logger, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  3,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("Failed to create logger with nested directory: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(filepath.Dir(logPath)); os.IsNotExist(err) {
		t.Error("Nested log directory was not created")
	}
}
