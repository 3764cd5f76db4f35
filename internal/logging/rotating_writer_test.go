package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestNewRotatingFileWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "dir", "app.log")

	w, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("Expected log file to be created: %v", err)
	}
}

func TestRotatingFileWriterAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(logFile, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	if _, err := w.Write([]byte("new\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = w.Close()

	if got := readFile(t, logFile); got != "old\nnew\n" {
		t.Errorf("Expected appended content, got %q", got)
	}
}

func TestRotatingFileWriterRotation(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(logFile, 10, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	for _, line := range []string{"first-1\n", "second2\n", "third-3\n", "fourth4\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	tests := []struct {
		path     string
		expected string
	}{
		{logFile, "fourth4\n"},
		{filepath.Join(filepath.Dir(logFile), "app.1.log"), "third-3\n"},
		{filepath.Join(filepath.Dir(logFile), "app.2.log"), "second2\n"},
	}
	for _, tt := range tests {
		if got := readFile(t, tt.path); got != tt.expected {
			t.Errorf("%s: expected %q, got %q", filepath.Base(tt.path), tt.expected, got)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(logFile), "app.3.log")); !os.IsNotExist(err) {
		t.Error("Expected the oldest backup to be dropped")
	}
}

func TestRotatingFileWriterNoBackups(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(logFile, 8, 0)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	_, _ = w.Write([]byte("aaaaaa\n"))
	_, _ = w.Write([]byte("bbbbbb\n"))

	if got := readFile(t, logFile); got != "bbbbbb\n" {
		t.Errorf("Expected file to be truncated on rotation, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(logFile), "app.*.log"))
	if len(matches) != 0 {
		t.Errorf("Expected no backups, got %v", matches)
	}
}

func TestRotatingFileWriterUnlimited(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingFileWriter(logFile, 0, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		_, _ = w.Write([]byte("line\n"))
	}
	_ = w.Close()

	if got := readFile(t, logFile); strings.Count(got, "line") != 100 {
		t.Errorf("Expected all lines in one file, got %d", strings.Count(got, "line"))
	}
}

func TestRotatingFileWriterClosed(t *testing.T) {
	w, err := NewRotatingFileWriter(filepath.Join(t.TempDir(), "app.log"), 100, 1)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("Expected write after close to fail")
	}
}

func TestBackupName(t *testing.T) {
	tests := []struct {
		path     string
		index    int
		expected string
	}{
		{"/var/log/app.log", 1, "/var/log/app.1.log"},
		{"/var/log/app.log", 12, "/var/log/app.12.log"},
		{"/var/log/app", 2, "/var/log/app.2"},
		{"build.json.log", 3, "build.json.3.log"},
	}

	for _, tt := range tests {
		w := &RotatingFileWriter{filePath: tt.path}
		if got := w.backupName(tt.index); got != tt.expected {
			t.Errorf("backupName(%q, %d) = %q, want %q", tt.path, tt.index, got, tt.expected)
		}
	}
}
