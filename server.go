package notesync

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pkt.systems/notesync/httpapi"
	"pkt.systems/notesync/internal/assistant"
	"pkt.systems/notesync/internal/docstore"
	"pkt.systems/pslog"
)

// Server runs the document and chat API.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the API server.
type ServerConfig struct {
	HTTP        httpapi.Config
	DocumentDir string
	Assistant   assistant.Config
}

// ServerDeps overrides collaborators. Nil fields are built from the config.
type ServerDeps struct {
	Store  httpapi.DocumentStore
	Chat   httpapi.ChatResponder
	Logger pslog.Logger
}

// NewServer constructs the API server.
func NewServer(cfg ServerConfig, deps ServerDeps) (Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store := deps.Store
	if store == nil {
		if strings.TrimSpace(cfg.DocumentDir) == "" {
			return nil, errors.New("document dir is required")
		}
		fileStore, err := docstore.NewStoreWithLogger(cfg.DocumentDir, logger)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}
	chat := deps.Chat
	if chat == nil {
		chat = assistant.New(cfg.Assistant, store, logger)
	}
	return &apiServer{
		cfg:     cfg,
		httpSrv: httpapi.NewServer(cfg.HTTP, store, chat),
	}, nil
}

type apiServer struct {
	cfg     ServerConfig
	httpSrv *httpapi.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	done    chan struct{}
	started bool
	logger  pslog.Logger
}

func (s *apiServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.done = make(chan struct{})
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("server start", "http_addr", s.cfg.HTTP.Addr, "http_base_path", s.cfg.HTTP.BasePath, "doc_dir", s.cfg.DocumentDir)
	go func() {
		defer close(s.done)
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *apiServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		pslog.Ctx(ctx).Error("server stopped", "err", err)
		_ = s.Stop(context.Background())
		return err
	}
}

func (s *apiServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	log.Info("server stop requested")
	cancel()
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
