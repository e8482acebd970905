package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/notesync/internal/logx"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// autosaveScheduler decides when dirty tabs are written back. Two triggers
// feed the same save path: a session-wide idle debounce restarted by every
// edit, and a periodic sweep over the dirty set. Saves for one tab never
// overlap; saves for different tabs may.
type autosaveScheduler struct {
	state    *state
	store    DocumentStore
	timers   Timers
	idle     time.Duration
	interval time.Duration
	target   schema.IdleTarget
	log      pslog.Logger
	emit     func(schema.SaveEvent)

	mu        sync.Mutex
	idleTimer Timer
	sweep     Timer
	started   bool
	stopped   bool
	tabLocks  map[schema.DocID]*sync.Mutex
	inflight  sync.WaitGroup
	baseCtx   context.Context
}

type autosaveConfig struct {
	idle     time.Duration
	interval time.Duration
	target   schema.IdleTarget
}

func newAutosaveScheduler(st *state, store DocumentStore, timers Timers, cfg autosaveConfig, log pslog.Logger, emit func(schema.SaveEvent)) *autosaveScheduler {
	if emit == nil {
		emit = func(schema.SaveEvent) {}
	}
	return &autosaveScheduler{
		state:    st,
		store:    store,
		timers:   timers,
		idle:     cfg.idle,
		interval: cfg.interval,
		target:   cfg.target,
		log:      log,
		emit:     emit,
		tabLocks: make(map[schema.DocID]*sync.Mutex),
		baseCtx:  context.Background(),
	}
}

// start arms the sweep. Background saves run on ctx with its logger.
func (a *autosaveScheduler) start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true
	if ctx != nil {
		a.baseCtx = context.WithoutCancel(ctx)
	}
	a.sweep = a.timers.Every(a.interval, func() {
		a.background(func(ctx context.Context) { a.saveDirty(ctx, schema.SaveTriggerSweep) })
	})
	a.log.Debug("autosave started", "idle", a.idle, "sweep", a.interval, "idle_target", a.target)
}

// onEdit restarts the idle debounce. Only the last edit inside the window
// matters for timing; content is read when the timer fires.
func (a *autosaveScheduler) onEdit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.idleTimer == nil {
		a.idleTimer = a.timers.AfterFunc(a.idle, a.idleFired)
		return
	}
	a.idleTimer.Reset(a.idle)
}

func (a *autosaveScheduler) idleFired() {
	a.background(func(ctx context.Context) { a.idleExpired(ctx) })
}

// background runs fn on the calling goroutine unless the scheduler is
// stopped, tracking it so stop can wait for it.
func (a *autosaveScheduler) background(fn func(context.Context)) {
	ctx, ok := a.track()
	if !ok {
		return
	}
	defer a.inflight.Done()
	fn(ctx)
}

// spawn is background on a new goroutine.
func (a *autosaveScheduler) spawn(fn func(context.Context)) {
	ctx, ok := a.track()
	if !ok {
		return
	}
	go func() {
		defer a.inflight.Done()
		fn(ctx)
	}()
}

func (a *autosaveScheduler) track() (context.Context, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil, false
	}
	a.inflight.Add(1)
	return a.baseCtx, true
}

// idleExpired saves the idle target if it is still dirty.
func (a *autosaveScheduler) idleExpired(ctx context.Context) {
	a.state.mu.Lock()
	var id schema.DocID
	switch a.target {
	case schema.IdleTargetEdited:
		id = a.state.lastEdited
	default:
		id = a.state.tabs.active
	}
	a.state.mu.Unlock()
	if id.IsZero() {
		return
	}
	_ = a.save(ctx, id, schema.SaveTriggerIdle, false)
}

// saveDirty issues one save per dirty open tab and reports how many failed.
func (a *autosaveScheduler) saveDirty(ctx context.Context, trigger schema.SaveTrigger) int {
	a.state.mu.Lock()
	dirty := a.state.dirty.ids()
	ids := make([]schema.DocID, 0, len(dirty))
	for _, id := range dirty {
		if a.state.tabs.has(id) {
			ids = append(ids, id)
		}
	}
	a.state.mu.Unlock()
	if len(ids) == 0 {
		return 0
	}
	a.log.Trace("autosave dirty pass", "dirty", len(ids), "trigger", trigger)
	failed := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			failed += len(ids) - i
			break
		}
		if err := a.save(ctx, id, trigger, false); err != nil {
			failed++
		}
	}
	return failed
}

// saveActive saves the active tab immediately whether or not it is dirty.
func (a *autosaveScheduler) saveActive(ctx context.Context) error {
	a.state.mu.Lock()
	id := a.state.tabs.active
	a.state.mu.Unlock()
	if id.IsZero() {
		return schema.ErrTabNotFound
	}
	return a.save(ctx, id, schema.SaveTriggerManual, true)
}

// save writes the current title and content of id. Callers for the same id
// queue on the tab lock; once admitted the dirty flag is re-checked and the
// content is read fresh, so a queued save never writes a stale snapshot.
func (a *autosaveScheduler) save(ctx context.Context, id schema.DocID, trigger schema.SaveTrigger, force bool) error {
	lock := a.tabLock(id)
	lock.Lock()
	defer lock.Unlock()

	log := logx.WithTrigger(logx.Tab(a.log, id), trigger)
	ctx = logx.ContextWithTabLogger(ctx, log, id)

	a.state.mu.Lock()
	t := a.state.tabs.get(id)
	if t == nil {
		a.state.mu.Unlock()
		return schema.ErrTabNotFound
	}
	gen, dirty := a.state.dirty.generation(id)
	if !dirty && !force {
		a.state.mu.Unlock()
		log.Trace("autosave skipped", "reason", "clean")
		return nil
	}
	title, content := t.Title, t.Content
	a.state.beginSaveLocked(id)
	a.state.mu.Unlock()

	err := a.write(ctx, id, title, content)
	if err != nil {
		a.state.mu.Lock()
		a.state.endSaveLocked(id, false)
		a.state.mu.Unlock()
		log.Warn("autosave save failed", "err", err)
		a.emit(schema.SaveEvent{Type: schema.SaveEventFailed, ID: id, Title: title, Trigger: trigger, StillDirty: true, Err: err})
		return err
	}

	a.state.mu.Lock()
	a.state.endSaveLocked(id, true)
	stillDirty := false
	if dirty {
		stillDirty = !a.state.dirty.clearIf(id, gen)
	} else {
		stillDirty = a.state.dirty.has(id)
	}
	a.state.mu.Unlock()
	if stillDirty {
		log.Debug("autosave saved", "still_dirty", true)
	} else {
		log.Debug("autosave saved")
	}
	a.emit(schema.SaveEvent{Type: schema.SaveEventSaved, ID: id, Title: title, Trigger: trigger, StillDirty: stillDirty})
	return nil
}

// flushClosed writes the final content of a tab that was closed while dirty.
// It serializes with any save already running for the same id.
func (a *autosaveScheduler) flushClosed(id schema.DocID, title, content string) {
	a.spawn(func(ctx context.Context) {
		lock := a.tabLock(id)
		lock.Lock()
		defer lock.Unlock()
		log := logx.WithTrigger(logx.Tab(a.log, id), schema.SaveTriggerManual)
		ctx = logx.ContextWithTabLogger(ctx, log, id)
		if err := a.write(ctx, id, title, content); err != nil {
			log.Warn("autosave closed tab flush failed", "err", err)
			a.emit(schema.SaveEvent{Type: schema.SaveEventFailed, ID: id, Title: title, Trigger: schema.SaveTriggerManual, Err: err})
			return
		}
		log.Debug("autosave closed tab flushed")
		a.emit(schema.SaveEvent{Type: schema.SaveEventSaved, ID: id, Title: title, Trigger: schema.SaveTriggerManual})
	})
}

func (a *autosaveScheduler) write(ctx context.Context, id schema.DocID, title, content string) error {
	if id.IsLocal() {
		return fmt.Errorf("%w: %w", schema.ErrSave, schema.ErrLocalDocument)
	}
	if err := a.store.Update(ctx, id, title, content); err != nil {
		if errors.Is(err, schema.ErrSave) {
			return err
		}
		return fmt.Errorf("%w: %w", schema.ErrSave, err)
	}
	return nil
}

func (a *autosaveScheduler) tabLock(id schema.DocID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock := a.tabLocks[id]
	if lock == nil {
		lock = &sync.Mutex{}
		a.tabLocks[id] = lock
	}
	return lock
}

// stop releases both timers and waits for background saves to finish or
// ctx to end.
func (a *autosaveScheduler) stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	if a.sweep != nil {
		a.sweep.Stop()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	if ctx == nil {
		<-done
		a.log.Debug("autosave stopped")
		return nil
	}
	select {
	case <-done:
		a.log.Debug("autosave stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("autosave stop timed out", "err", ctx.Err())
		return ctx.Err()
	}
}
