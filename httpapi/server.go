package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/notesync/internal/docstore"
	"pkt.systems/notesync/internal/logx"
	"pkt.systems/notesync/internal/version"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

const maxBodyBytes = 8 << 20

// DocumentStore persists documents for the API.
type DocumentStore interface {
	List(ctx context.Context) ([]schema.Document, error)
	Get(ctx context.Context, id schema.DocID) (schema.Document, error)
	Create(ctx context.Context, title, content string) (schema.Document, error)
	Patch(ctx context.Context, id schema.DocID, patch docstore.Patch) (schema.Document, error)
	Delete(ctx context.Context, id schema.DocID) error
}

// ChatResponder answers chat requests. It always produces a message.
type ChatResponder interface {
	Reply(ctx context.Context, req schema.ChatRequest) schema.ChatMessage
}

// Server serves the document and chat API.
type Server struct {
	cfg      Config
	docs     DocumentStore
	chat     ChatResponder
	hub      *Hub
	basePath string
}

// NewServer constructs an HTTP server. chat may be nil, in which case the
// chat endpoint answers 503.
func NewServer(cfg Config, docs DocumentStore, chat ChatResponder) *Server {
	return &Server{
		cfg:      cfg,
		docs:     docs,
		chat:     chat,
		hub:      NewHub(cfg.HistorySize),
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Hub returns the document event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("POST /api/documents", s.handleCreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", s.withDocumentID(s.handleGetDocument))
	mux.HandleFunc("PUT /api/documents/{id}", s.withDocumentID(s.handleUpdateDocument))
	mux.HandleFunc("DELETE /api/documents/{id}", s.withDocumentID(s.handleDeleteDocument))
	mux.HandleFunc("POST /api/chat/message", s.handleChat)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	handler := withCORS(withRequestLogging(mux), s.cfg.AllowedOrigins)
	return mountBasePath(s.basePath, handler)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.RootResponse{Message: "notesync document API", Version: version.Current()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.HealthResponse{Status: "healthy"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if docs == nil {
		docs = []schema.Document{}
	}
	pslog.Ctx(r.Context()).Trace("http documents listed", "count", len(docs))
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	title, err := schema.NormalizeTitle(req.Title)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: title is required", schema.ErrInvalidRequest))
		return
	}
	doc, err := s.docs.Create(r.Context(), title, req.Content)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	logx.WithDocument(pslog.Ctx(r.Context()), doc).Info("http document created")
	s.hub.Publish(r.Context(), schema.DocumentEvent{Type: schema.DocumentCreated, ID: doc.ID, Title: doc.Title})
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, id schema.DocID) {
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request, id schema.DocID) {
	var req schema.UpdateDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	patch := docstore.Patch{Content: req.Content}
	if req.Title != nil {
		title, err := schema.NormalizeTitle(*req.Title)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: title must not be blank", schema.ErrInvalidRequest))
			return
		}
		patch.Title = &title
	}
	doc, err := s.docs.Patch(r.Context(), id, patch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	logx.WithDocument(pslog.Ctx(r.Context()), doc).Debug("http document updated", "title_changed", req.Title != nil, "content_changed", req.Content != nil)
	s.hub.Publish(r.Context(), schema.DocumentEvent{Type: schema.DocumentUpdated, ID: doc.ID, Title: doc.Title})
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, id schema.DocID) {
	if err := s.docs.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	pslog.Ctx(r.Context()).Info("http document deleted", "doc", id.String())
	s.hub.Publish(r.Context(), schema.DocumentEvent{Type: schema.DocumentDeleted, ID: id})
	writeJSON(w, http.StatusOK, schema.DeleteDocumentResponse{Message: "Document deleted successfully"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("chat is not configured"))
		return
	}
	var req schema.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: messages are required", schema.ErrInvalidRequest))
		return
	}
	log := pslog.Ctx(r.Context())
	if !req.DocumentID.IsZero() {
		log = log.With("doc", req.DocumentID.String())
	}
	start := time.Now()
	msg := s.chat.Reply(r.Context(), req)
	if msg.Role == "" {
		msg.Role = schema.RoleAssistant
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	log.Debug("http chat answered", "messages", len(req.Messages), "duration_ms", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, schema.ChatResponse{Message: msg})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := s.hub.Subscribe(r.Context())
	defer unsubscribe()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	replayed := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(lastID) {
			_ = writeSSEvent(w, event)
			replayed++
			lastID = event.Seq
		}
	}
	flusher.Flush()

	log.Info("http stream opened", "replay", replayed)
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

// withDocumentID parses the {id} path value.
func (s *Server) withDocumentID(next func(http.ResponseWriter, *http.Request, schema.DocID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := schema.ParseDocID(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if id.IsLocal() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", schema.ErrInvalidID, id))
			return
		}
		next(w, r, id)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidRequest), errors.Is(err, schema.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", schema.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: %w", schema.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, schema.ErrorResponse{Error: err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event schema.DocumentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
