package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/notesync/internal/appconfig"
)

func TestConfigShowRedactsAPIKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "sk-test-secret")
	path := filepath.Join(home, "notesync.yaml")
	if _, err := appconfig.WriteDefault(path, false); err != nil {
		t.Fatalf("write default: %v", err)
	}

	root := newRootCmd()
	var out strings.Builder
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "-c", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config show: %v", err)
	}
	text := out.String()
	if strings.Contains(text, "sk-test-secret") {
		t.Fatalf("expected api key to be redacted:\n%s", text)
	}
	if !strings.Contains(text, "<redacted>") || !strings.Contains(text, "idle_ms:") {
		t.Fatalf("unexpected config output:\n%s", text)
	}
}
