package notesync

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"pkt.systems/notesync/httpapi"
	"pkt.systems/notesync/internal/apiclient"
	"pkt.systems/notesync/internal/docstore"
	"pkt.systems/notesync/schema"
)

func TestServerStopCancelsListener(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		HTTP:        httpapi.Config{Addr: "127.0.0.1:0"},
		DocumentDir: t.TempDir(),
	}, ServerDeps{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Wait(); err == nil {
		t.Fatalf("expected Wait to fail before Start")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("wait after stop: %v", err)
	}
}

func TestNewServerRequiresStore(t *testing.T) {
	if _, err := NewServer(ServerConfig{}, ServerDeps{}); err == nil {
		t.Fatalf("expected error without document dir")
	}
}

func newAPI(t *testing.T) (*httptest.Server, *apiclient.Client) {
	t.Helper()
	store, err := docstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	api := httptest.NewServer(httpapi.NewServer(httpapi.Config{}, store, nil).Handler())
	t.Cleanup(api.Close)
	client, err := apiclient.New(apiclient.Config{BaseURL: api.URL})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return api, client
}

func quietWorkspace() schema.WorkspaceConfig {
	return schema.WorkspaceConfig{IdleDelay: time.Hour, SweepInterval: time.Hour}
}

func TestEditorBootstrapsAgainstServer(t *testing.T) {
	api, _ := newAPI(t)
	editor, err := NewEditor(EditorConfig{
		Workspace: quietWorkspace(),
		Remote:    apiclient.Config{BaseURL: api.URL},
	}, EditorDeps{})
	if err != nil {
		t.Fatalf("editor: %v", err)
	}
	events, cancel := editor.Subscribe()
	defer cancel()

	ctx := context.Background()
	if err := editor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	tabs := editor.Workspace().Tabs()
	if len(tabs) != 1 || tabs[0].Title != "Untitled1.md" || tabs[0].ID.IsLocal() {
		t.Fatalf("expected a created first document, got %+v", tabs)
	}
	select {
	case event := <-events:
		if event.Tab.Type == "" {
			t.Fatalf("expected a tab event, got %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a bootstrap event")
	}

	if err := editor.Workspace().EditActive("# changed"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := editor.Workspace().Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := editor.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEditorFollowRefreshesOnRemoteChange(t *testing.T) {
	api, other := newAPI(t)
	ctx := context.Background()
	if _, err := other.Create(ctx, "first.md", "a"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	editor, err := NewEditor(EditorConfig{
		Workspace: quietWorkspace(),
		Remote:    apiclient.Config{BaseURL: api.URL},
		Follow:    true,
	}, EditorDeps{})
	if err != nil {
		t.Fatalf("editor: %v", err)
	}
	if err := editor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = editor.Close(ctx) }()

	// The stream subscribes asynchronously; keep creating until one lands.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := other.Create(ctx, "second.md", "b"); err != nil {
			t.Fatalf("create: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
		if hasFile(editor.Workspace().Directory(), "second.md") {
			return
		}
	}
	t.Fatalf("expected remote document in directory, got %+v", editor.Workspace().Directory())
}

func hasFile(entries []schema.DirectoryEntry, name string) bool {
	for _, entry := range entries {
		if entry.Kind == schema.EntryFile && entry.Name == name {
			return true
		}
		if hasFile(entry.Children, name) {
			return true
		}
	}
	return false
}
