package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
cache_dir = %q
log_dir = %q

[providers.tmdb]
api_key = "test"

[providers.fanart]
api_key = "test"
`,
		filepath.Join(base, "staging"),
		filepath.Join(base, "library"),
		filepath.Join(base, "cache"),
		filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v: %v", args, err)
	}
	return out.String()
}

func TestQueueStatusEmptyQueue(t *testing.T) {
	configPath := writeTestConfig(t)
	out := runCommand(t, "--config", configPath, "queue", "status")
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestScanThenQueueList(t *testing.T) {
	configPath := writeTestConfig(t)

	out := runCommand(t, "--config", configPath, "scan")
	if !strings.Contains(out, "Scan queued") {
		t.Fatalf("unexpected scan output: %q", out)
	}

	out = runCommand(t, "--config", configPath, "queue", "list")
	if !strings.Contains(out, "scan") || !strings.Contains(out, "pending") {
		t.Fatalf("scan job missing from list: %q", out)
	}
}

func TestConfigValidate(t *testing.T) {
	configPath := writeTestConfig(t)
	out := runCommand(t, "--config", configPath, "config", "validate")
	if !strings.Contains(out, "Configuration is valid") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")

	out := runCommand(t, "--config", configPath, "config", "init")
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected output: %q", out)
	}

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--config", configPath, "config", "init"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("second init without --force must fail")
	}
}

func TestEntityListEmptyCatalog(t *testing.T) {
	configPath := writeTestConfig(t)
	out := runCommand(t, "--config", configPath, "entity", "list")
	if !strings.Contains(out, "Catalog is empty") {
		t.Fatalf("unexpected output: %q", out)
	}
}
