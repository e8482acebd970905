package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/notesync/internal/logx"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

type workspace struct {
	cfg      schema.WorkspaceConfig
	store    DocumentStore
	sink     EventSink
	logger   pslog.Logger
	now      func() time.Time
	st       *state
	autosave *autosaveScheduler
	creation *CreationGuard
	chat     *chatLog

	// booted and closed are guarded by st.mu.
	booted bool
	closed bool
}

// NewWorkspace constructs a workspace. Nothing touches the store until
// Bootstrap.
func NewWorkspace(cfg schema.WorkspaceConfig, deps WorkspaceDeps) (Workspace, error) {
	normalized, err := schema.NormalizeWorkspaceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Store == nil {
		return nil, errors.New("document store is required")
	}
	if deps.Timers == nil {
		deps.Timers = RealTimers()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	w := &workspace{
		cfg:      cfg,
		store:    deps.Store,
		sink:     deps.EventSink,
		logger:   logger,
		now:      deps.Now,
		st:       newState(),
		creation: NewCreationGuard(),
	}
	w.st.dir.ensureFolder(cfg.DefaultFolderID, cfg.DefaultFolderName)
	w.autosave = newAutosaveScheduler(w.st, deps.Store, deps.Timers, autosaveConfig{
		idle:     cfg.IdleDelay,
		interval: cfg.SweepInterval,
		target:   cfg.IdleTarget,
	}, logger, w.emitSaveEvent)
	w.chat = newChatLog(deps.Responder, cfg.Greeting, cfg.Apology, deps.Now, logger)
	return w, nil
}

// Bootstrap loads the document list into tabs and starts autosave. Backend
// failures degrade to a single local placeholder tab; they are not returned.
func (w *workspace) Bootstrap(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return schema.ErrClosed
	}
	if w.booted {
		w.st.mu.Unlock()
		return nil
	}
	w.booted = true
	w.st.mu.Unlock()

	log := pslog.Ctx(ctx)
	docs, err := w.store.List(ctx)
	if err == nil {
		docs = storedDocuments(docs, log)
	}
	switch {
	case err != nil:
		log.Warn("workspace document list failed", "err", err)
		w.openLocalPlaceholder()
	case len(docs) == 0:
		doc, err := w.store.Create(ctx, w.cfg.TitleBase+"1"+w.cfg.TitleExt, w.cfg.DefaultContent())
		if err == nil && !doc.ID.IsStored() {
			err = fmt.Errorf("%w: %s", schema.ErrInvalidID, doc.ID)
		}
		if err != nil {
			log.Warn("workspace default document create failed", "err", err)
			w.openLocalPlaceholder()
			break
		}
		logx.WithDocument(log, doc).Info("workspace default document created")
		w.openDocuments([]schema.Document{doc})
	default:
		w.openDocuments(docs)
	}
	w.autosave.start(ctx)
	w.st.mu.Lock()
	count := w.st.tabs.len()
	w.st.mu.Unlock()
	log.Info("workspace bootstrapped", "tabs", count)
	return nil
}

// openDocuments opens every document as a tab, files them under the default
// folder and selects the first one.
func (w *workspace) openDocuments(docs []schema.Document) {
	var events []schema.TabEvent
	w.st.mu.Lock()
	for _, doc := range docs {
		if doc.ID.IsZero() {
			continue
		}
		if w.st.tabs.open(doc) {
			events = append(events, schema.TabEvent{Type: schema.TabEventOpened, Tab: newTab(doc).Snapshot(false, false)})
		}
		w.st.dir.insertFile(w.cfg.DefaultFolderID, schema.FileEntry(doc.ID, doc.Title))
	}
	if len(docs) > 0 && w.st.tabs.has(docs[0].ID) {
		w.st.tabs.active = docs[0].ID
	}
	active := w.st.tabs.active
	w.st.mu.Unlock()
	for _, event := range events {
		event.ActiveTab = active
		event.Tab.Active = event.Tab.ID == active
		w.emitTabEvent(event)
	}
}

func (w *workspace) openLocalPlaceholder() {
	doc := schema.Document{
		ID:      schema.LocalID("1"),
		Title:   w.cfg.TitleBase + "1" + w.cfg.TitleExt,
		Content: w.cfg.DefaultContent(),
	}
	w.openDocuments([]schema.Document{doc})
	w.logger.Warn("workspace using local placeholder", "tab", doc.ID.String())
}

// Open selects the tab for doc, appending it when it is not open yet.
func (w *workspace) Open(doc schema.Document) (schema.TabSnapshot, error) {
	if doc.ID.IsZero() {
		return schema.TabSnapshot{}, schema.ErrInvalidID
	}
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return schema.TabSnapshot{}, schema.ErrClosed
	}
	appended := w.st.tabs.open(doc)
	w.st.dir.insertFile(w.cfg.DefaultFolderID, schema.FileEntry(doc.ID, doc.Title))
	snap := w.st.snapshotTabLocked(w.st.tabs.get(doc.ID))
	w.st.mu.Unlock()
	w.emitTabEvent(schema.TabEvent{Type: openEventType(appended), Tab: snap, ActiveTab: snap.ID})
	return snap, nil
}

// SelectOrOpen selects an open tab or lazily opens a file from the
// directory. A failed fetch opens the tab with placeholder content.
func (w *workspace) SelectOrOpen(ctx context.Context, id schema.DocID) (schema.TabSnapshot, error) {
	if ctx == nil {
		return schema.TabSnapshot{}, errors.New("missing context")
	}
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return schema.TabSnapshot{}, schema.ErrClosed
	}
	if t := w.st.tabs.get(id); t != nil {
		w.st.tabs.active = id
		snap := w.st.snapshotTabLocked(t)
		w.st.mu.Unlock()
		w.emitTabEvent(schema.TabEvent{Type: schema.TabEventActivated, Tab: snap, ActiveTab: id})
		return snap, nil
	}
	entry, ok := w.st.dir.findFile(id)
	w.st.mu.Unlock()
	if !ok {
		return schema.TabSnapshot{}, fmt.Errorf("%w: %s", schema.ErrNotFound, id)
	}

	log := logx.WithTab(ctx, id)
	doc, err := w.store.Get(logx.ContextWithTabLogger(ctx, log, id), id)
	if err != nil {
		log.Warn("workspace document fetch failed", "err", err)
		doc = schema.Document{ID: id, Title: entry.Name, Content: w.cfg.PlaceholderContent(entry.Name)}
	}
	doc.ID = id
	if doc.Title == "" {
		doc.Title = entry.Name
	}

	w.st.mu.Lock()
	appended := w.st.tabs.open(doc)
	snap := w.st.snapshotTabLocked(w.st.tabs.get(id))
	w.st.mu.Unlock()
	if appended {
		log.Debug("workspace tab opened")
	}
	w.emitTabEvent(schema.TabEvent{Type: openEventType(appended), Tab: snap, ActiveTab: id})
	return snap, nil
}

func (w *workspace) Activate(id schema.DocID) error {
	w.st.mu.Lock()
	if err := w.st.tabs.activate(id); err != nil {
		w.st.mu.Unlock()
		return err
	}
	snap := w.st.snapshotTabLocked(w.st.tabs.get(id))
	w.st.mu.Unlock()
	w.emitTabEvent(schema.TabEvent{Type: schema.TabEventActivated, Tab: snap, ActiveTab: id})
	return nil
}

// CloseTab removes a tab from the session. The document itself is kept.
func (w *workspace) CloseTab(id schema.DocID) error {
	w.st.mu.Lock()
	closed, err := w.st.tabs.close(id)
	if err != nil {
		w.st.mu.Unlock()
		return err
	}
	wasDirty := w.st.dirty.has(id)
	w.st.dirty.forget(id)
	if w.st.lastEdited == id {
		w.st.lastEdited = schema.DocID{}
	}
	active := w.st.tabs.active
	snap := closed.Snapshot(false, wasDirty)
	w.st.mu.Unlock()

	logx.Tab(w.logger, id).Info("workspace tab closed", "dirty", wasDirty)
	w.emitTabEvent(schema.TabEvent{Type: schema.TabEventClosed, Tab: snap, ActiveTab: active})
	if wasDirty && w.cfg.FlushOnClose && !id.IsLocal() {
		w.autosave.flushClosed(id, closed.Title, closed.Content)
	}
	return nil
}

// Edit replaces the content of an open tab, marks it dirty and restarts
// the idle debounce.
func (w *workspace) Edit(id schema.DocID, content string) error {
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return schema.ErrClosed
	}
	if err := w.st.tabs.edit(id, content); err != nil {
		w.st.mu.Unlock()
		return err
	}
	w.st.dirty.mark(id)
	w.st.lastEdited = id
	w.st.mu.Unlock()
	w.autosave.onEdit()
	return nil
}

func (w *workspace) EditActive(content string) error {
	w.st.mu.Lock()
	id := w.st.tabs.active
	w.st.mu.Unlock()
	if id.IsZero() {
		return schema.ErrTabNotFound
	}
	return w.Edit(id, content)
}

// Rename changes a tab title. It counts as an edit and keeps the directory
// name in step.
func (w *workspace) Rename(id schema.DocID, title string) error {
	title, err := schema.NormalizeTitle(title)
	if err != nil {
		return err
	}
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return schema.ErrClosed
	}
	if err := w.st.tabs.setTitle(id, title); err != nil {
		w.st.mu.Unlock()
		return err
	}
	w.st.dirty.mark(id)
	w.st.lastEdited = id
	w.st.dir.renameFile(id, title)
	w.st.mu.Unlock()
	w.autosave.onEdit()
	return nil
}

// NewDocument creates a document remotely and opens it. A call made while
// another creation is outstanding returns ErrCreateInFlight without side
// effects. A failed create leaves tabs and directory untouched.
func (w *workspace) NewDocument(ctx context.Context) (schema.Document, error) {
	if ctx == nil {
		return schema.Document{}, errors.New("missing context")
	}
	w.st.mu.Lock()
	closed := w.closed
	w.st.mu.Unlock()
	if closed {
		return schema.Document{}, schema.ErrClosed
	}
	log := pslog.Ctx(ctx)
	var created schema.Document
	admitted, err := w.creation.Admit(ctx, func(ctx context.Context) error {
		w.st.mu.Lock()
		title := NextTitle(w.st.tabs.ids(), w.cfg.TitleBase, w.cfg.TitleExt)
		w.st.mu.Unlock()

		doc, err := w.store.Create(ctx, title, w.cfg.DefaultContent())
		if err != nil {
			log.Warn("workspace document create failed", "title", title, "err", err)
			if errors.Is(err, schema.ErrCreate) {
				return err
			}
			return fmt.Errorf("%w: %w", schema.ErrCreate, err)
		}
		if !doc.ID.IsStored() {
			return fmt.Errorf("%w: %w", schema.ErrCreate, schema.ErrInvalidID)
		}

		w.st.mu.Lock()
		appended := false
		if w.st.tabs.has(doc.ID) {
			w.st.tabs.active = doc.ID
		} else {
			w.st.tabs.open(doc)
			appended = true
		}
		w.st.dir.insertFile(w.cfg.DefaultFolderID, schema.FileEntry(doc.ID, doc.Title))
		snap := w.st.snapshotTabLocked(w.st.tabs.get(doc.ID))
		w.st.mu.Unlock()

		created = doc
		if appended {
			logx.WithDocument(log, doc).Info("workspace document created")
			w.emitTabEvent(schema.TabEvent{Type: schema.TabEventCreated, Tab: snap, ActiveTab: doc.ID})
			return nil
		}
		logx.WithDocument(log, doc).Debug("workspace document already open")
		w.emitTabEvent(schema.TabEvent{Type: schema.TabEventActivated, Tab: snap, ActiveTab: doc.ID})
		return nil
	})
	if !admitted {
		log.Debug("workspace document create dropped", "reason", "in flight")
		return schema.Document{}, schema.ErrCreateInFlight
	}
	return created, err
}

// Save writes the active tab now, dirty or not.
func (w *workspace) Save(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	return w.autosave.saveActive(ctx)
}

// Flush saves every dirty tab once.
func (w *workspace) Flush(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	if failed := w.autosave.saveDirty(ctx, schema.SaveTriggerManual); failed > 0 {
		return fmt.Errorf("%w: %d documents still dirty", schema.ErrSave, failed)
	}
	return nil
}

type localTab struct {
	id      schema.DocID
	title   string
	content string
	gen     uint64
	dirty   bool
}

// Refresh reconciles the workspace with the store. New documents are filed
// under the default folder, clean open tabs take the stored title and
// content, and local placeholder tabs are created remotely and rekeyed.
// A tab whose save is in flight, or was acknowledged after the listing was
// requested, keeps its content. A local tab is only created by one Refresh
// at a time.
func (w *workspace) Refresh(ctx context.Context) (RefreshResult, error) {
	if ctx == nil {
		return RefreshResult{}, errors.New("missing context")
	}
	log := pslog.Ctx(ctx)
	w.st.mu.Lock()
	acked := w.st.ackSnapshotLocked()
	w.st.mu.Unlock()
	docs, err := w.store.List(ctx)
	if err != nil {
		log.Warn("workspace refresh list failed", "err", err)
		if errors.Is(err, schema.ErrFetch) {
			return RefreshResult{}, err
		}
		return RefreshResult{}, fmt.Errorf("%w: %w", schema.ErrFetch, err)
	}

	result := RefreshResult{Listed: len(docs)}
	var events []schema.TabEvent
	var locals []localTab
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return RefreshResult{}, schema.ErrClosed
	}
	for _, doc := range docs {
		if !doc.ID.IsStored() {
			continue
		}
		if _, ok := w.st.dir.findFile(doc.ID); !ok {
			if w.st.dir.insertFile(w.cfg.DefaultFolderID, schema.FileEntry(doc.ID, doc.Title)) {
				result.Added++
			}
		}
		t := w.st.tabs.get(doc.ID)
		if t == nil || w.st.dirty.has(doc.ID) || !w.st.settledLocked(doc.ID, acked) {
			continue
		}
		if t.Title == doc.Title && t.Content == doc.Content {
			continue
		}
		t.Title = doc.Title
		t.Content = doc.Content
		w.st.dir.renameFile(doc.ID, doc.Title)
		result.Updated++
		events = append(events, schema.TabEvent{Type: schema.TabEventRefreshed, Tab: w.st.snapshotTabLocked(t)})
	}
	for _, id := range w.st.tabs.order {
		if !id.IsLocal() {
			continue
		}
		if _, busy := w.st.reconciling[id]; busy {
			continue
		}
		w.st.reconciling[id] = struct{}{}
		t := w.st.tabs.get(id)
		gen, dirty := w.st.dirty.generation(id)
		locals = append(locals, localTab{id: id, title: t.Title, content: t.Content, gen: gen, dirty: dirty})
	}
	active := w.st.tabs.active
	w.st.mu.Unlock()

	for _, event := range events {
		event.ActiveTab = active
		w.emitTabEvent(event)
	}

	var reconcileErr error
	for _, local := range locals {
		doc, err := w.store.Create(ctx, local.title, local.content)
		if err == nil && !doc.ID.IsStored() {
			err = fmt.Errorf("%w: %s", schema.ErrInvalidID, doc.ID)
		}
		if err != nil {
			w.st.mu.Lock()
			delete(w.st.reconciling, local.id)
			w.st.mu.Unlock()
			log.Warn("workspace local tab reconcile failed", "tab", local.id.String(), "err", err)
			if reconcileErr == nil {
				reconcileErr = fmt.Errorf("%w: %w", schema.ErrCreate, err)
			}
			continue
		}
		if snap, ok := w.reconcileLocal(local, doc); ok {
			result.Reconciled++
			logx.WithDocument(log, doc).Info("workspace local tab reconciled", "local", local.id.String())
			w.emitTabEvent(schema.TabEvent{Type: schema.TabEventRefreshed, Tab: snap, ActiveTab: w.activeID()})
		}
	}
	log.Debug("workspace refreshed", "listed", result.Listed, "added", result.Added, "updated", result.Updated, "reconciled", result.Reconciled)
	return result, reconcileErr
}

// reconcileLocal moves a local tab onto the id the store assigned it. Edits
// made while the create was in flight keep the tab dirty under the new id.
func (w *workspace) reconcileLocal(local localTab, doc schema.Document) (schema.TabSnapshot, bool) {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	delete(w.st.reconciling, local.id)
	if !w.st.tabs.rekey(local.id, doc.ID) {
		return schema.TabSnapshot{}, false
	}
	w.st.dirty.rekey(local.id, doc.ID)
	if local.dirty {
		w.st.dirty.clearIf(doc.ID, local.gen)
	}
	if w.st.lastEdited == local.id {
		w.st.lastEdited = doc.ID
	}
	if w.st.dir.rekeyFile(local.id, doc.ID) == 0 {
		w.st.dir.insertFile(w.cfg.DefaultFolderID, schema.FileEntry(doc.ID, doc.Title))
	}
	return w.st.snapshotTabLocked(w.st.tabs.get(doc.ID)), true
}

// SendChat posts a message about the active document. Responder failures
// are absorbed into an apology reply.
func (w *workspace) SendChat(ctx context.Context, text string) (schema.ChatMessage, error) {
	if ctx == nil {
		return schema.ChatMessage{}, errors.New("missing context")
	}
	id := w.activeID()
	if id.IsLocal() {
		id = schema.DocID{}
	}
	return w.chat.send(ctx, text, id)
}

func (w *workspace) ToggleFolder(id schema.DocID) error {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	if !w.st.dir.toggleFolder(id) {
		return fmt.Errorf("%w: folder %s", schema.ErrNotFound, id)
	}
	return nil
}

func (w *workspace) AddFolder(name string) schema.DirectoryEntry {
	if name == "" {
		name = w.cfg.NewFolderName
	}
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	return w.st.dir.addFolder(name)
}

func (w *workspace) Tabs() []schema.TabSnapshot {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	return w.st.snapshotTabsLocked()
}

func (w *workspace) ActiveTab() (schema.TabSnapshot, bool) {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	t, ok := w.st.tabs.activeTab()
	if !ok {
		return schema.TabSnapshot{}, false
	}
	return w.st.snapshotTabLocked(t), true
}

func (w *workspace) Directory() []schema.DirectoryEntry {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	return w.st.dir.snapshot()
}

func (w *workspace) Dirty() []schema.DocID {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	return w.st.dirty.ids()
}

func (w *workspace) ChatHistory() []schema.ChatMessage {
	return w.chat.history()
}

// Close stops both autosave timers and waits for in-flight saves. Dirty
// tabs are not flushed; call Flush first for that.
func (w *workspace) Close(ctx context.Context) error {
	w.st.mu.Lock()
	if w.closed {
		w.st.mu.Unlock()
		return nil
	}
	w.closed = true
	dirty := w.st.dirty.len()
	w.st.mu.Unlock()
	if dirty > 0 {
		w.logger.Warn("workspace closing with unsaved tabs", "dirty", dirty)
	}
	return w.autosave.stop(ctx)
}

func (w *workspace) activeID() schema.DocID {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	return w.st.tabs.active
}

func (w *workspace) emitTabEvent(event schema.TabEvent) {
	if w.sink == nil {
		return
	}
	w.sink.OnTabEvent(event)
}

func (w *workspace) emitSaveEvent(event schema.SaveEvent) {
	if w.sink == nil {
		return
	}
	w.sink.OnSaveEvent(event)
}

// storedDocuments drops documents whose id a store cannot have assigned.
func storedDocuments(docs []schema.Document, log pslog.Logger) []schema.Document {
	out := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if !doc.ID.IsStored() {
			log.Warn("workspace document skipped", "reason", "invalid id", "doc", doc.ID.String())
			continue
		}
		out = append(out, doc)
	}
	return out
}

func openEventType(appended bool) schema.TabEventType {
	if appended {
		return schema.TabEventOpened
	}
	return schema.TabEventActivated
}
