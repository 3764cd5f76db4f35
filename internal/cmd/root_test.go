package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs a fresh command tree with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2026-01-01T10:00:00Z")

	expected := "1.2.3 (built 2026-01-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
	if ua := generateUserAgent(); ua != "hondana/1.2.3" {
		t.Errorf("Expected user agent hondana/1.2.3, got %s", ua)
	}

	SetVersionInfo("dev", "unknown")
	if ua := generateUserAgent(); ua != "hondana/dev" {
		t.Errorf("Expected user agent hondana/dev, got %s", ua)
	}
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	if root.Use != "hondana" {
		t.Errorf("Expected use 'hondana', got %s", root.Use)
	}

	for _, name := range []string{"build", "manifest", "formats"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}

	build, _, _ := root.Find([]string{"build"})
	for _, flag := range []string{"make", "max-depth", "include", "exclude", "include-mediatype",
		"exclude-mediatype", "output-dir", "cover", "generate-cover", "database", "show-config"} {
		if build.Flags().Lookup(flag) == nil {
			t.Errorf("Expected build flag --%s", flag)
		}
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats")
	if err != nil {
		t.Fatalf("formats failed: %v", err)
	}
	for _, format := range []string{"epub", "epub2", "epub3", "html", "pdf", "txt"} {
		if !strings.Contains(out, format+"\n") {
			t.Errorf("Expected %s in output, got %q", format, out)
		}
	}
}

func TestShowConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "hondana.yml")
	configContent := `
max_depth: 3
formats: [txt, pdf]
title: From File
request_delay: 2s
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		expected []string
	}{
		{
			name:     "defaults",
			args:     []string{"build", "--show-config"},
			expected: []string{"max_depth: 1", "- epub", "respect_robots: true", "max_chunk_size: 307200"},
		},
		{
			name:     "config file",
			args:     []string{"build", "--show-config", "--config", configFile},
			expected: []string{"max_depth: 3", "- txt", "- pdf", "title: From File", "request_delay: 2s"},
		},
		{
			name:     "flag overrides file",
			args:     []string{"build", "--show-config", "--config", configFile, "--max-depth", "5", "-m", "html"},
			expected: []string{"max_depth: 5", "- html", "title: From File"},
		},
		{
			name:     "environment",
			args:     []string{"build", "--show-config"},
			env:      map[string]string{"HONDANA_TITLE": "From Env", "HONDANA_LOG_LEVEL": "debug"},
			expected: []string{"title: From Env", "level: debug"},
		},
		{
			name:     "source argument",
			args:     []string{"build", "https://example.com/book/", "--show-config"},
			expected: []string{"source: https://example.com/book/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("build --show-config failed: %v", err)
			}
			for _, want := range tt.expected {
				if !strings.Contains(out, want) {
					t.Errorf("Expected %q in output:\n%s", want, out)
				}
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "build", "--show-config", "--config", filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestBuildCommandErrors(t *testing.T) {
	if _, err := execute(t, "build"); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}

	_, err := execute(t, "build", "index.html", "--max-depth=-1")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got %v", err)
	}

	_, err = execute(t, "build", "index.html", "-m", "mobi")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("Expected unknown format error, got %v", err)
	}
}

func TestBuildAndManifestCommands(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "index.html")
	doc := `<html><head><title>Local Book</title></head>
<body><h1>Local Book</h1><p>Read from disk.</p></body></html>`
	if err := os.WriteFile(source, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "db", "manifest.db")

	out, err := execute(t, "build", source, "-m", "txt", "-o", outDir, "-d", dbPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	expectedOutput := filepath.Join(outDir, "Local_Book.txt")
	if _, err := os.Stat(expectedOutput); err != nil {
		t.Errorf("Expected %s to exist: %v", expectedOutput, err)
	}
	if !strings.Contains(out, "txt: "+expectedOutput) {
		t.Errorf("Expected the output path in the summary, got:\n%s", out)
	}

	out, err = execute(t, "manifest", "--database", dbPath, "--resources")
	if err != nil {
		t.Fatalf("manifest failed: %v", err)
	}
	for _, want := range []string{"status: completed", "format: txt", "resources: 1", "url: file://"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in manifest output:\n%s", want, out)
		}
	}

	if _, err := execute(t, "manifest", "--database", dbPath, "no-such-build"); err == nil {
		t.Error("Expected an error for an unknown build id")
	}
}

func TestManifestWithoutDatabase(t *testing.T) {
	if _, err := execute(t, "manifest"); err == nil {
		t.Error("Expected an error without a database")
	}
	if _, err := execute(t, "manifest", "--database", filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("Expected an error for a missing database file")
	}
}
