package notesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/notesync/core"
	"pkt.systems/notesync/internal/apiclient"
	"pkt.systems/notesync/internal/eventbus"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

const followRetryDelay = 2 * time.Second

// EditorConfig configures an editing session against a notesync server.
type EditorConfig struct {
	Workspace schema.WorkspaceConfig
	Remote    apiclient.Config
	// Follow refreshes the workspace whenever the server reports a change.
	Follow bool
}

// EditorDeps overrides collaborators. With no Store the editor talks to
// Remote.BaseURL.
type EditorDeps struct {
	Store     core.DocumentStore
	Responder core.Responder
	EventSink core.EventSink
	Timers    core.Timers
	Logger    pslog.Logger
}

// Editor is a workspace wired to a server, with its events published on a bus.
type Editor struct {
	cfg    EditorConfig
	ws     core.Workspace
	bus    *eventbus.Bus
	client *apiclient.Client
	log    pslog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	refresh chan struct{}
}

// NewEditor builds the workspace and its collaborators. Nothing is fetched
// until Start.
func NewEditor(cfg EditorConfig, deps EditorDeps) (*Editor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	e := &Editor{cfg: cfg, bus: eventbus.New(logger), log: logger, refresh: make(chan struct{}, 1)}

	store, responder := deps.Store, deps.Responder
	if store == nil {
		remote := cfg.Remote
		if remote.Logger == nil {
			remote.Logger = logger
		}
		client, err := apiclient.New(remote)
		if err != nil {
			return nil, err
		}
		e.client = client
		store = client
		if responder == nil {
			responder = client
		}
	}

	var sink core.EventSink = e.bus
	if deps.EventSink != nil {
		sink = eventFanout{sinks: []core.EventSink{deps.EventSink, e.bus}}
	}
	ws, err := core.NewWorkspace(cfg.Workspace, core.WorkspaceDeps{
		Store:     store,
		Responder: responder,
		EventSink: sink,
		Timers:    deps.Timers,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	e.ws = ws
	return e, nil
}

// Workspace returns the editing session.
func (e *Editor) Workspace() core.Workspace {
	return e.ws
}

// Subscribe returns a channel of workspace events and its cancel func.
func (e *Editor) Subscribe() (<-chan eventbus.Event, func()) {
	return e.bus.Subscribe()
}

// Start bootstraps the workspace and, when configured, follows server changes.
func (e *Editor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return errors.New("editor already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.ws.Bootstrap(ctx); err != nil {
		return err
	}
	if e.cfg.Follow && e.client != nil {
		e.wg.Add(2)
		go e.follow(runCtx)
		go e.refreshLoop(runCtx)
	}
	return nil
}

// Close stops following and tears the workspace down.
func (e *Editor) Close(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	return e.ws.Close(ctx)
}

func (e *Editor) follow(ctx context.Context) {
	defer e.wg.Done()
	var last uint64
	for ctx.Err() == nil {
		seq, err := e.client.Follow(ctx, last, func(event schema.DocumentEvent) {
			e.log.Debug("editor remote change", "type", event.Type, "doc", event.ID.String(), "seq", event.Seq)
			select {
			case e.refresh <- struct{}{}:
			default:
			}
		})
		last = seq
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.log.Warn("editor follow failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(followRetryDelay):
		}
	}
}

// refreshLoop coalesces bursts of remote changes into single refreshes.
func (e *Editor) refreshLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.refresh:
			result, err := e.ws.Refresh(ctx)
			if err != nil {
				e.log.Warn("editor refresh failed", "err", err)
				continue
			}
			e.log.Debug("editor refreshed", "listed", result.Listed, "added", result.Added, "updated", result.Updated)
		}
	}
}
