package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/notesync/internal/logx"
	"pkt.systems/notesync/internal/version"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// DefaultTimeout bounds every request when the caller sets none.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     pslog.Logger
}

// Client talks to a notesync HTTP server. It satisfies the workspace
// DocumentStore and Responder interfaces.
type Client struct {
	base   *url.URL
	client *http.Client
	log    pslog.Logger
}

// New validates the base URL and builds a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Client{base: base, client: httpClient, log: logger.With("remote", base.String())}, nil
}

// List returns every document on the server.
func (c *Client) List(ctx context.Context) ([]schema.Document, error) {
	var docs []schema.Document
	if err := c.do(ctx, http.MethodGet, "/api/documents", nil, &docs); err != nil {
		return nil, wrap(schema.ErrFetch, err)
	}
	return docs, nil
}

// Get fetches one document.
func (c *Client) Get(ctx context.Context, id schema.DocID) (schema.Document, error) {
	var doc schema.Document
	if err := c.do(ctx, http.MethodGet, documentPath(id), nil, &doc); err != nil {
		return schema.Document{}, wrap(schema.ErrFetch, err)
	}
	return doc, nil
}

// Create stores a new document and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, title, content string) (schema.Document, error) {
	var doc schema.Document
	req := schema.CreateDocumentRequest{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/documents", req, &doc); err != nil {
		return schema.Document{}, wrap(schema.ErrCreate, err)
	}
	if doc.ID.IsZero() {
		return schema.Document{}, fmt.Errorf("%w: response carried no id", schema.ErrCreate)
	}
	return doc, nil
}

// Update overwrites title and content.
func (c *Client) Update(ctx context.Context, id schema.DocID, title, content string) error {
	req := schema.UpdateDocumentRequest{Title: &title, Content: &content}
	if err := c.do(ctx, http.MethodPut, documentPath(id), req, nil); err != nil {
		return wrap(schema.ErrSave, err)
	}
	return nil
}

// Delete removes a document on the server.
func (c *Client) Delete(ctx context.Context, id schema.DocID) error {
	if err := c.do(ctx, http.MethodDelete, documentPath(id), nil, nil); err != nil {
		return wrap(schema.ErrSave, err)
	}
	return nil
}

// SendMessage posts the conversation and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, history []schema.ChatMessage, documentID schema.DocID) (schema.ChatMessage, error) {
	req := schema.ChatRequest{Messages: history, DocumentID: documentID}
	var resp schema.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/message", req, &resp); err != nil {
		return schema.ChatMessage{}, wrap(schema.ErrChat, err)
	}
	if resp.Message.Role == "" {
		resp.Message.Role = schema.RoleAssistant
	}
	return resp.Message, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var resp schema.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("server reported %q", resp.Status)
	}
	return nil
}

// statusError is a non-2xx response.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	endpoint := c.base.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.log
	if tab, ok := logx.TabFromContext(ctx); ok {
		log = logx.Tab(log, tab)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("remote request failed", "method", method, "path", path, "err", err)
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	log.Trace("remote request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &statusError{code: resp.StatusCode, message: errorMessage(data)}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", schema.ErrNotFound, statusErr)
		}
		return statusErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var resp schema.ErrorResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.TrimSpace(string(data))
}

func documentPath(id schema.DocID) string {
	return "/api/documents/" + url.PathEscape(id.String())
}

// wrap tags err with kind unless it already is a not-found.
func wrap(kind error, err error) error {
	if errors.Is(err, schema.ErrNotFound) || errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
