package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/notesync"
	"pkt.systems/notesync/httpapi"
	"pkt.systems/notesync/internal/apiclient"
	"pkt.systems/notesync/internal/docstore"
	"pkt.systems/notesync/internal/version"
	"pkt.systems/notesync/schema"
)

func newTestEditor(t *testing.T) (*notesync.Editor, *docstore.Store) {
	t.Helper()
	store, err := docstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	api := httptest.NewServer(httpapi.NewServer(httpapi.Config{}, store, nil).Handler())
	t.Cleanup(api.Close)
	editor, err := notesync.NewEditor(notesync.EditorConfig{
		Workspace: schema.WorkspaceConfig{IdleDelay: time.Hour, SweepInterval: time.Hour},
		Remote:    apiclient.Config{BaseURL: api.URL},
	}, notesync.EditorDeps{})
	if err != nil {
		t.Fatalf("editor: %v", err)
	}
	return editor, store
}

func TestRunEditorScript(t *testing.T) {
	editor, store := newTestEditor(t)
	script := strings.Join([]string{
		"tabs",
		"edit # Plan\\nship it",
		"append done",
		"title plan.md",
		"save",
		"new",
		"close 2",
		"tree",
		"bogus",
		"quit",
		"tabs",
	}, "\n")
	var out strings.Builder
	if err := runEditor(context.Background(), editor, strings.NewReader(script), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"* 1 Untitled1.md", "created 2 \"Untitled2.md\"", "plan.md (1)", "unknown command bogus"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}

	doc, err := store.Get(context.Background(), schema.NumericID(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Title != "plan.md" || doc.Content != "# Plan\nship it\ndone" {
		t.Fatalf("unexpected stored document %+v", doc)
	}
}

func TestRunEditorRejectsLastTabClose(t *testing.T) {
	editor, _ := newTestEditor(t)
	var out strings.Builder
	if err := runEditor(context.Background(), editor, strings.NewReader("close 1\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), schema.ErrCannotCloseLastTab.Error()) {
		t.Fatalf("expected last tab error, got:\n%s", out.String())
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "edit", "config", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
}

func TestVersionCommandReportsUserAgent(t *testing.T) {
	root := newRootCmd()
	var out strings.Builder
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "user-agent: "+version.UserAgent()) {
		t.Fatalf("expected user agent in output:\n%s", out.String())
	}

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version --short: %v", err)
	}
	if strings.TrimSpace(out.String()) != version.Current() {
		t.Fatalf("expected bare version, got %q", out.String())
	}
}
