package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds a single completion.
	DefaultTimeout = 30 * time.Second
	// DefaultSystemPrompt opens every conversation.
	DefaultSystemPrompt = "You are a helpful assistant."
)

// ErrDisabled indicates no API key was configured.
var ErrDisabled = errors.New("assistant is not configured")

// DocumentSource resolves the document a conversation is about.
type DocumentSource interface {
	Get(ctx context.Context, id schema.DocID) (schema.Document, error)
}

// Config configures the OpenAI-compatible backend.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	SystemPrompt   string
	Apology        string
	TimeoutApology string
}

// Responder answers chat requests with a chat completion. The system prompt
// carries the content of the document in focus.
type Responder struct {
	client *openai.Client
	cfg    Config
	docs   DocumentSource
	log    pslog.Logger
}

// New builds a responder. Without an API key every reply is the apology.
func New(cfg Config, docs DocumentSource, logger pslog.Logger) *Responder {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Apology == "" {
		cfg.Apology = "Sorry, the assistant cannot answer right now. Please try again later."
	}
	if cfg.TimeoutApology == "" {
		cfg.TimeoutApology = "Sorry, the request timed out. Please try again later."
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	r := &Responder{cfg: cfg, docs: docs, log: logger.With("model", cfg.Model)}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		r.log.Warn("assistant disabled", "reason", "no api key")
		return r
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	r.client = openai.NewClientWithConfig(clientConfig)
	return r
}

// Enabled reports whether an API key is configured.
func (r *Responder) Enabled() bool {
	return r.client != nil
}

// Reply answers a chat request. Failures become an apology message so the
// caller always has something to show.
func (r *Responder) Reply(ctx context.Context, req schema.ChatRequest) schema.ChatMessage {
	msg, err := r.SendMessage(ctx, req.Messages, req.DocumentID)
	if err == nil {
		return msg
	}
	content := r.cfg.Apology
	if errors.Is(err, context.DeadlineExceeded) {
		content = r.cfg.TimeoutApology
	}
	return schema.ChatMessage{Role: schema.RoleAssistant, Content: content, Timestamp: time.Now()}
}

// SendMessage runs one completion over history. Blank messages are dropped.
func (r *Responder) SendMessage(ctx context.Context, history []schema.ChatMessage, documentID schema.DocID) (schema.ChatMessage, error) {
	if r.client == nil {
		return schema.ChatMessage{}, fmt.Errorf("%w: %w", schema.ErrChat, ErrDisabled)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    r.cfg.Model,
		Messages: r.buildMessages(ctx, history, documentID),
	}
	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		r.log.Warn("assistant completion failed", "err", err)
		return schema.ChatMessage{}, fmt.Errorf("%w: %w", schema.ErrChat, err)
	}
	if len(resp.Choices) == 0 {
		r.log.Warn("assistant completion empty")
		return schema.ChatMessage{}, fmt.Errorf("%w: no choices", schema.ErrChat)
	}
	r.log.Debug("assistant completion ok",
		"finish_reason", string(resp.Choices[0].FinishReason),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return schema.ChatMessage{
		Role:      schema.RoleAssistant,
		Content:   resp.Choices[0].Message.Content,
		Timestamp: time.Now(),
	}, nil
}

func (r *Responder) buildMessages(ctx context.Context, history []schema.ChatMessage, documentID schema.DocID) []openai.ChatCompletionMessage {
	system := r.cfg.SystemPrompt
	if content := r.documentContext(ctx, documentID); content != "" {
		system += "\n\nThe user is editing the following document:\n" + content
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		var role string
		switch msg.Role {
		case schema.RoleUser:
			role = openai.ChatMessageRoleUser
		case schema.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return messages
}

// documentContext returns the document body, or nothing when it cannot be
// loaded.
func (r *Responder) documentContext(ctx context.Context, id schema.DocID) string {
	if id.IsZero() || r.docs == nil {
		return ""
	}
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		r.log.Debug("assistant document context unavailable", "doc", id.String(), "err", err)
		return ""
	}
	return doc.Content
}
