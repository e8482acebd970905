package core

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"pkt.systems/notesync/internal/logx"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

var errBackend = errors.New("backend down")

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	every   bool
	active  bool
	resets  int
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.active
	t.active = false
	t.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.active
	t.d = d
	t.active = true
	t.resets++
	return was
}

// fire runs the callback synchronously when the timer is armed.
func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return false
	}
	if !t.every {
		t.active = false
	}
	f := t.f
	t.mu.Unlock()
	f()
	return true
}

func (t *fakeTimer) isActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

type fakeTimers struct {
	mu     sync.Mutex
	after  []*fakeTimer
	ticker []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, f: fn, active: true}
	f.after = append(f.after, t)
	return t
}

func (f *fakeTimers) Every(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, f: fn, every: true, active: true}
	f.ticker = append(f.ticker, t)
	return t
}

func (f *fakeTimers) idle(t *testing.T) *fakeTimer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.after) != 1 {
		t.Fatalf("expected a single idle timer, got %d", len(f.after))
	}
	return f.after[0]
}

func (f *fakeTimers) sweep(t *testing.T) *fakeTimer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ticker) != 1 {
		t.Fatalf("expected a single sweep ticker, got %d", len(f.ticker))
	}
	return f.ticker[0]
}

type update struct {
	ID      schema.DocID
	Title   string
	Content string
}

type fakeStore struct {
	mu        sync.Mutex
	docs      map[schema.DocID]schema.Document
	order     []schema.DocID
	next      int64
	listErr   error
	getErr    error
	createErr error
	createID  schema.DocID
	updateErr map[schema.DocID]error

	creates  []string
	updates  []update
	gets     []schema.DocID
	inflight map[schema.DocID]int
	maxInfl  map[schema.DocID]int

	createGate    chan struct{}
	createStarted chan struct{}
	updateGate    chan struct{}
	updateStarted chan schema.DocID
	// listGate holds List after it has taken its snapshot.
	listGate    chan struct{}
	listStarted chan struct{}

	updateTabs []schema.DocID
}

func newFakeStore(docs ...schema.Document) *fakeStore {
	s := &fakeStore{
		docs:      make(map[schema.DocID]schema.Document),
		updateErr: make(map[schema.DocID]error),
		inflight:  make(map[schema.DocID]int),
		maxInfl:   make(map[schema.DocID]int),
	}
	for _, doc := range docs {
		s.put(doc)
	}
	return s
}

func (s *fakeStore) put(doc schema.Document) {
	if _, ok := s.docs[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
	if n, ok := doc.ID.Numeric(); ok && n > s.next {
		s.next = n
	}
}

func (s *fakeStore) List(ctx context.Context) ([]schema.Document, error) {
	s.mu.Lock()
	if s.listErr != nil {
		err := s.listErr
		s.mu.Unlock()
		return nil, err
	}
	out := make([]schema.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	gate, started := s.listGate, s.listStarted
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id schema.DocID) (schema.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, id)
	if s.getErr != nil {
		return schema.Document{}, s.getErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return schema.Document{}, schema.ErrNotFound
	}
	return doc, nil
}

func (s *fakeStore) Create(ctx context.Context, title, content string) (schema.Document, error) {
	s.mu.Lock()
	s.creates = append(s.creates, title)
	gate, started := s.createGate, s.createStarted
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return schema.Document{}, s.createErr
	}
	if !s.createID.IsZero() {
		return schema.Document{ID: s.createID, Title: title, Content: content}, nil
	}
	s.next++
	doc := schema.Document{ID: schema.NumericID(s.next), Title: title, Content: content}
	s.put(doc)
	return doc, nil
}

func (s *fakeStore) Update(ctx context.Context, id schema.DocID, title, content string) error {
	s.mu.Lock()
	if tab, ok := logx.TabFromContext(ctx); ok {
		s.updateTabs = append(s.updateTabs, tab)
	}
	s.inflight[id]++
	if s.inflight[id] > s.maxInfl[id] {
		s.maxInfl[id] = s.inflight[id]
	}
	gate, started := s.updateGate, s.updateStarted
	s.mu.Unlock()
	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id]--
	s.updates = append(s.updates, update{ID: id, Title: title, Content: content})
	if err := s.updateErr[id]; err != nil {
		return err
	}
	doc := s.docs[id]
	doc.ID, doc.Title, doc.Content = id, title, content
	s.put(doc)
	return nil
}

func (s *fakeStore) setUpdateErr(id schema.DocID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.updateErr, id)
		return
	}
	s.updateErr[id] = err
}

func (s *fakeStore) updateLog() []update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]update(nil), s.updates...)
}

func (s *fakeStore) content(id schema.DocID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Content
}

func (s *fakeStore) gateList() (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	s.listGate, s.listStarted = gate, ch
	return ch, func() {
		s.mu.Lock()
		s.listGate, s.listStarted = nil, nil
		s.mu.Unlock()
		close(gate)
	}
}

func (s *fakeStore) createLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.creates...)
}

type recordingSink struct {
	mu    sync.Mutex
	tabs  []schema.TabEvent
	saves []schema.SaveEvent
}

func (r *recordingSink) OnTabEvent(event schema.TabEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = append(r.tabs, event)
}

func (r *recordingSink) OnSaveEvent(event schema.SaveEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, event)
}

func (r *recordingSink) saveEvents() []schema.SaveEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.SaveEvent(nil), r.saves...)
}

func (r *recordingSink) tabEvents() []schema.TabEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.TabEvent(nil), r.tabs...)
}

type fakeResponder struct {
	mu      sync.Mutex
	err     error
	reply   string
	history [][]schema.ChatMessage
	docIDs  []schema.DocID
}

func (f *fakeResponder) SendMessage(ctx context.Context, history []schema.ChatMessage, documentID schema.DocID) (schema.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, append([]schema.ChatMessage(nil), history...))
	f.docIDs = append(f.docIDs, documentID)
	if f.err != nil {
		return schema.ChatMessage{}, f.err
	}
	return schema.ChatMessage{Role: schema.RoleAssistant, Content: f.reply}, nil
}

type testWorkspace struct {
	*workspace
	store  *fakeStore
	timers *fakeTimers
	sink   *recordingSink
}

func discardLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}

func newTestWorkspace(t *testing.T, cfg schema.WorkspaceConfig, store *fakeStore, responder Responder) *testWorkspace {
	t.Helper()
	timers := &fakeTimers{}
	sink := &recordingSink{}
	ws, err := NewWorkspace(cfg, WorkspaceDeps{
		Store:     store,
		Responder: responder,
		EventSink: sink,
		Timers:    timers,
		Logger:    discardLogger(),
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	impl := ws.(*workspace)
	t.Cleanup(func() { _ = impl.Close(context.Background()) })
	return &testWorkspace{workspace: impl, store: store, timers: timers, sink: sink}
}

// bootedWorkspace bootstraps against numbered documents 1..n.
func bootedWorkspace(t *testing.T, cfg schema.WorkspaceConfig, n int) *testWorkspace {
	t.Helper()
	docs := make([]schema.Document, 0, n)
	for i := 1; i <= n; i++ {
		docs = append(docs, schema.Document{
			ID:      schema.NumericID(int64(i)),
			Title:   "doc" + string(rune('0'+i)) + ".md",
			Content: "v0",
		})
	}
	tw := newTestWorkspace(t, cfg, newFakeStore(docs...), nil)
	if err := tw.Bootstrap(testContext()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return tw
}

func testContext() context.Context {
	return pslog.ContextWithLogger(context.Background(), discardLogger())
}

func sortedIDs(ids []schema.DocID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}
