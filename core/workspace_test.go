package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/notesync/schema"
)

func TestBootstrapOpensListedDocuments(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 3)
	tabs := tw.Tabs()
	if len(tabs) != 3 {
		t.Fatalf("expected 3 tabs, got %d", len(tabs))
	}
	active, ok := tw.ActiveTab()
	if !ok || active.ID != schema.NumericID(1) {
		t.Fatalf("expected first document active, got %+v", active)
	}
	tree := tw.Directory()
	if len(tree) != 1 || tree[0].ID != schema.TextID(schema.DefaultFolderID) || tree[0].Name != "Notes" {
		t.Fatalf("unexpected tree %+v", tree)
	}
	if len(tree[0].Children) != 3 {
		t.Fatalf("expected 3 files in the default folder, got %d", len(tree[0].Children))
	}
	if len(tw.timers.ticker) != 1 {
		t.Fatalf("expected bootstrap to start the sweep")
	}
}

func TestBootstrapEmptyListCreatesOneDocument(t *testing.T) {
	store := newFakeStore()
	tw := newTestWorkspace(t, schema.WorkspaceConfig{}, store, nil)
	ctx := testContext()
	if err := tw.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := tw.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	creates := store.createLog()
	if len(creates) != 1 || creates[0] != "Untitled1.md" {
		t.Fatalf("expected exactly one default document, got %v", creates)
	}
	active, ok := tw.ActiveTab()
	if !ok || active.ID != schema.NumericID(1) || active.Content != "# New Document\n\nStart typing here..." {
		t.Fatalf("unexpected active tab %+v", active)
	}
	if _, ok := tw.st.dir.findFile(schema.NumericID(1)); !ok {
		t.Fatalf("expected default document in the directory")
	}
}

func TestBootstrapFallsBackToLocalTab(t *testing.T) {
	cases := map[string]func(*fakeStore){
		"list fails":   func(s *fakeStore) { s.listErr = errBackend },
		"create fails": func(s *fakeStore) { s.createErr = errBackend },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			setup(store)
			tw := newTestWorkspace(t, schema.WorkspaceConfig{}, store, nil)
			if err := tw.Bootstrap(testContext()); err != nil {
				t.Fatalf("bootstrap: %v", err)
			}
			tabs := tw.Tabs()
			if len(tabs) != 1 || !tabs[0].ID.IsLocal() || !tabs[0].Active {
				t.Fatalf("expected a single local tab, got %+v", tabs)
			}
			if tabs[0].Title != "Untitled1.md" {
				t.Fatalf("unexpected local title %q", tabs[0].Title)
			}
		})
	}
}

func TestNewDocumentDropsConcurrentCreate(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	gate := make(chan struct{})
	tw.store.createGate = gate
	tw.store.createStarted = make(chan struct{}, 1)

	ctx := testContext()
	var wg sync.WaitGroup
	var first schema.Document
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = tw.NewDocument(ctx)
	}()
	<-tw.store.createStarted

	if _, err := tw.NewDocument(ctx); !errors.Is(err, schema.ErrCreateInFlight) {
		t.Fatalf("expected ErrCreateInFlight, got %v", err)
	}
	close(gate)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first create: %v", firstErr)
	}
	if creates := tw.store.createLog(); len(creates) != 1 || creates[0] != "Untitled2.md" {
		t.Fatalf("expected one create call, got %v", creates)
	}
	active, _ := tw.ActiveTab()
	if active.ID != first.ID || len(tw.Tabs()) != 2 {
		t.Fatalf("expected the new document to be open and active, got %+v", tw.Tabs())
	}
	if len(tw.Directory()[0].Children) != 2 {
		t.Fatalf("expected the new document in the default folder")
	}

	next, err := tw.NewDocument(ctx)
	if err != nil {
		t.Fatalf("third create: %v", err)
	}
	if next.Title != "Untitled3.md" {
		t.Fatalf("expected Untitled3.md, got %q", next.Title)
	}
}

func TestNewDocumentFailureLeavesStateUnchanged(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	tw.store.createErr = errBackend
	if _, err := tw.NewDocument(testContext()); !errors.Is(err, schema.ErrCreate) {
		t.Fatalf("expected ErrCreate, got %v", err)
	}
	if len(tw.Tabs()) != 1 || len(tw.Directory()[0].Children) != 1 {
		t.Fatalf("expected failed create to leave tabs and directory alone")
	}
	if tw.creation.Busy() {
		t.Fatalf("expected creation guard released after failure")
	}
}

func TestNewDocumentWithOpenIDDoesNotDuplicate(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 2)
	tw.store.createID = schema.NumericID(2)
	if _, err := tw.NewDocument(testContext()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(tw.Tabs()) != 2 || len(tw.Directory()[0].Children) != 2 {
		t.Fatalf("expected no duplicate tab or entry")
	}
	if active, _ := tw.ActiveTab(); active.ID != schema.NumericID(2) {
		t.Fatalf("expected the existing tab to be selected, got %s", active.ID)
	}
}

func TestStoreIDsInLocalNamespaceAreRejected(t *testing.T) {
	store := newFakeStore(
		schema.Document{ID: schema.TextID("local:1"), Title: "spoof.md"},
		schema.Document{ID: schema.NumericID(2), Title: "real.md"},
	)
	tw := newTestWorkspace(t, schema.WorkspaceConfig{}, store, nil)
	ctx := testContext()
	if err := tw.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	tabs := tw.Tabs()
	if len(tabs) != 1 || tabs[0].ID != schema.NumericID(2) {
		t.Fatalf("expected only the numeric document open, got %+v", tabs)
	}

	store.mu.Lock()
	store.createID = schema.LocalID("9")
	store.mu.Unlock()
	if _, err := tw.NewDocument(ctx); !errors.Is(err, schema.ErrCreate) {
		t.Fatalf("expected ErrCreate for a local id from the store, got %v", err)
	}
	if len(tw.Tabs()) != 1 {
		t.Fatalf("expected no tab for the rejected document")
	}
}

func TestCloseTabRules(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 3)
	if err := tw.CloseTab(schema.NumericID(1)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if active, _ := tw.ActiveTab(); active.ID != schema.NumericID(2) {
		t.Fatalf("expected tab 2 active, got %s", active.ID)
	}
	if _, ok := tw.st.dir.findFile(schema.NumericID(1)); !ok {
		t.Fatalf("expected closed document to stay in the directory")
	}
	if err := tw.CloseTab(schema.NumericID(2)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tw.CloseTab(schema.NumericID(3)); !errors.Is(err, schema.ErrCannotCloseLastTab) {
		t.Fatalf("expected ErrCannotCloseLastTab, got %v", err)
	}
	if len(tw.Tabs()) != 1 {
		t.Fatalf("expected one tab to remain")
	}
	events := tw.sink.tabEvents()
	last := events[len(events)-1]
	if last.Type != schema.TabEventClosed || last.ActiveTab != schema.NumericID(3) {
		t.Fatalf("unexpected close event %+v", last)
	}
}

func TestSelectOrOpenLazilyFetches(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 3)
	if err := tw.CloseTab(schema.NumericID(2)); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx := testContext()
	snap, err := tw.SelectOrOpen(ctx, schema.NumericID(2))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if snap.Content != "v0" || !snap.Active {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	tabs := tw.Tabs()
	if tabs[len(tabs)-1].ID != schema.NumericID(2) {
		t.Fatalf("expected lazily opened tab at the end, got %+v", tabs)
	}

	gets := len(tw.store.gets)
	if _, err := tw.SelectOrOpen(ctx, schema.NumericID(1)); err != nil {
		t.Fatalf("select open tab: %v", err)
	}
	if len(tw.store.gets) != gets {
		t.Fatalf("expected an open tab to be selected without a fetch")
	}
	if _, err := tw.SelectOrOpen(ctx, schema.NumericID(42)); !errors.Is(err, schema.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown file, got %v", err)
	}
}

func TestSelectOrOpenFallsBackToPlaceholder(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 2)
	if err := tw.CloseTab(schema.NumericID(2)); err != nil {
		t.Fatalf("close: %v", err)
	}
	tw.store.getErr = errBackend
	snap, err := tw.SelectOrOpen(testContext(), schema.NumericID(2))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if snap.Title != "doc2.md" || snap.Content != "# doc2\n\nStart typing here..." {
		t.Fatalf("unexpected placeholder %+v", snap)
	}
}

func TestRenameMarksDirtyAndRenamesEntry(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	id := schema.NumericID(1)
	if err := tw.Rename(id, "  renamed.md "); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if dirty := tw.Dirty(); len(dirty) != 1 || dirty[0] != id {
		t.Fatalf("expected rename to mark dirty, got %v", dirty)
	}
	entry, _ := tw.st.dir.findFile(id)
	if entry.Name != "renamed.md" {
		t.Fatalf("expected directory entry renamed, got %q", entry.Name)
	}
	if err := tw.Rename(id, "   "); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRefreshPullsRemoteChanges(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 2)
	if err := tw.Edit(schema.NumericID(2), "local edit"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	tw.store.mu.Lock()
	tw.store.put(schema.Document{ID: schema.NumericID(1), Title: "doc1.md", Content: "remote"})
	tw.store.put(schema.Document{ID: schema.NumericID(2), Title: "doc2.md", Content: "remote"})
	tw.store.put(schema.Document{ID: schema.NumericID(3), Title: "doc3.md", Content: "new"})
	tw.store.mu.Unlock()

	result, err := tw.Refresh(testContext())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Listed != 3 || result.Added != 1 || result.Updated != 1 || result.Reconciled != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	tabs := tw.Tabs()
	if tabs[0].Content != "remote" {
		t.Fatalf("expected clean tab refreshed, got %q", tabs[0].Content)
	}
	if tabs[1].Content != "local edit" || !tabs[1].Dirty {
		t.Fatalf("expected dirty tab to keep local edits, got %+v", tabs[1])
	}
	if len(tabs) != 2 {
		t.Fatalf("expected refresh not to open tabs")
	}
	if _, ok := tw.st.dir.findFile(schema.NumericID(3)); !ok {
		t.Fatalf("expected new document filed in the directory")
	}
}

func TestRefreshReconcilesLocalTab(t *testing.T) {
	store := newFakeStore()
	store.listErr = errBackend
	tw := newTestWorkspace(t, schema.WorkspaceConfig{}, store, nil)
	ctx := testContext()
	if err := tw.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := tw.EditActive("written offline"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := tw.Refresh(ctx); !errors.Is(err, schema.ErrFetch) {
		t.Fatalf("expected ErrFetch while offline, got %v", err)
	}

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	result, err := tw.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Reconciled != 1 {
		t.Fatalf("expected one reconciled tab, got %+v", result)
	}
	active, _ := tw.ActiveTab()
	if active.ID != schema.NumericID(1) || active.Content != "written offline" || active.Dirty {
		t.Fatalf("unexpected reconciled tab %+v", active)
	}
	if _, ok := tw.st.dir.findFile(schema.NumericID(1)); !ok {
		t.Fatalf("expected directory entry rekeyed")
	}
	if _, ok := tw.st.dir.findFile(schema.LocalID("1")); ok {
		t.Fatalf("expected local entry gone")
	}
}

func TestFolderOperations(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	folder := tw.AddFolder("")
	if folder.Name != "New Folder" {
		t.Fatalf("expected default folder name, got %q", folder.Name)
	}
	if tree := tw.Directory(); tree[0].ID != folder.ID {
		t.Fatalf("expected new folder first")
	}
	if err := tw.ToggleFolder(folder.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if tw.Directory()[0].Expanded {
		t.Fatalf("expected folder collapsed")
	}
	if err := tw.ToggleFolder(schema.TextID("nope")); !errors.Is(err, schema.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenDocumentSelectsExisting(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 2)
	snap, err := tw.Open(schema.Document{ID: schema.NumericID(2), Title: "ignored", Content: "ignored"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.Title != "doc2.md" || !snap.Active {
		t.Fatalf("expected existing tab selected, got %+v", snap)
	}
	if _, err := tw.Open(schema.Document{}); !errors.Is(err, schema.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := tw.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tw.Open(schema.Document{ID: schema.NumericID(9)}); !errors.Is(err, schema.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRefreshKeepsTabSavedDuringList(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	ctx := testContext()
	id := schema.NumericID(1)
	if err := tw.Edit(id, "v1"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	started, release := tw.store.gateList()
	done := make(chan error, 1)
	go func() {
		_, err := tw.Refresh(ctx)
		done <- err
	}()
	<-started
	if err := tw.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	tab := tw.Tabs()[0]
	if tab.Content != "v1" || tab.Dirty {
		t.Fatalf("expected saved content kept and clean, got %+v", tab)
	}
	if got := tw.store.content(id); got != "v1" {
		t.Fatalf("expected store to hold v1, got %q", got)
	}
}

func TestRefreshSkipsTabWithSaveInFlight(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 1)
	ctx := testContext()
	id := schema.NumericID(1)

	gate := make(chan struct{})
	started := make(chan schema.DocID, 1)
	tw.store.mu.Lock()
	tw.store.updateGate = gate
	tw.store.updateStarted = started
	tw.store.mu.Unlock()

	saved := make(chan error, 1)
	go func() { saved <- tw.Save(ctx) }()
	<-started

	tw.store.mu.Lock()
	tw.store.put(schema.Document{ID: id, Title: "doc1.md", Content: "remote"})
	tw.store.mu.Unlock()
	result, err := tw.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Updated != 0 {
		t.Fatalf("expected no tab update while a save is in flight, got %+v", result)
	}
	close(gate)
	if err := <-saved; err != nil {
		t.Fatalf("save: %v", err)
	}
	tab := tw.Tabs()[0]
	if got := tw.store.content(id); tab.Content != got || tab.Dirty {
		t.Fatalf("expected tab %q clean and equal to store %q", tab.Content, got)
	}
}

func TestConcurrentRefreshCreatesLocalTabOnce(t *testing.T) {
	store := newFakeStore()
	store.listErr = errBackend
	tw := newTestWorkspace(t, schema.WorkspaceConfig{}, store, nil)
	ctx := testContext()
	if err := tw.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	gate := make(chan struct{})
	started := make(chan struct{}, 2)
	store.mu.Lock()
	store.listErr = nil
	store.createGate = gate
	store.createStarted = started
	store.mu.Unlock()

	type outcome struct {
		result RefreshResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := tw.Refresh(ctx)
		first <- outcome{result, err}
	}()
	<-started

	second, err := tw.Refresh(ctx)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if second.Reconciled != 0 {
		t.Fatalf("expected the second refresh to leave the local tab alone, got %+v", second)
	}
	close(gate)
	got := <-first
	if got.err != nil || got.result.Reconciled != 1 {
		t.Fatalf("expected the first refresh to reconcile, got %+v (%v)", got.result, got.err)
	}
	if creates := store.createLog(); len(creates) != 1 {
		t.Fatalf("expected one remote create, got %v", creates)
	}
	tabs := tw.Tabs()
	if len(tabs) != 1 || tabs[0].ID != schema.NumericID(1) {
		t.Fatalf("expected the single tab rekeyed, got %+v", tabs)
	}
	if len(tw.st.reconciling) != 0 {
		t.Fatalf("expected reconcile marks cleared")
	}
}

func TestSaveCarriesTabOnContext(t *testing.T) {
	tw := bootedWorkspace(t, schema.WorkspaceConfig{}, 2)
	if err := tw.Activate(schema.NumericID(2)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := tw.Save(testContext()); err != nil {
		t.Fatalf("save: %v", err)
	}
	tw.store.mu.Lock()
	tabs := append([]schema.DocID(nil), tw.store.updateTabs...)
	tw.store.mu.Unlock()
	if len(tabs) != 1 || tabs[0] != schema.NumericID(2) {
		t.Fatalf("expected the save context to carry tab 2, got %v", tabs)
	}
}
