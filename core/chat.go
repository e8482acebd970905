package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// chatLog is the append-only conversation shown next to the editor. One
// send is in flight at a time.
type chatLog struct {
	mu       sync.Mutex
	messages []schema.ChatMessage
	sending  atomic.Bool

	responder Responder
	apology   string
	now       func() time.Time
	log       pslog.Logger
}

func newChatLog(responder Responder, greeting, apology string, now func() time.Time, log pslog.Logger) *chatLog {
	c := &chatLog{responder: responder, apology: apology, now: now, log: log}
	if greeting != "" {
		c.messages = append(c.messages, schema.ChatMessage{
			ID:        newMessageID(),
			Role:      schema.RoleAssistant,
			Content:   greeting,
			Timestamp: now(),
		})
	}
	return c
}

// send appends the user message, asks the responder for a reply with the
// full history and appends whatever comes back. A failed reply is replaced
// by the apology; the returned error is only set for rejected input.
func (c *chatLog) send(ctx context.Context, text string, documentID schema.DocID) (schema.ChatMessage, error) {
	text, err := schema.NormalizeMessage(text)
	if err != nil {
		return schema.ChatMessage{}, err
	}
	if !c.sending.CompareAndSwap(false, true) {
		return schema.ChatMessage{}, schema.ErrChatBusy
	}
	defer c.sending.Store(false)

	c.mu.Lock()
	c.messages = append(c.messages, schema.ChatMessage{
		ID:        newMessageID(),
		Role:      schema.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	})
	history := conversation(c.messages)
	c.mu.Unlock()

	var reply schema.ChatMessage
	if c.responder == nil {
		err = schema.ErrChat
	} else {
		reply, err = c.responder.SendMessage(ctx, history, documentID)
	}
	if err != nil {
		c.log.Warn("chat reply failed", "err", err)
		reply = schema.ChatMessage{Role: schema.RoleAssistant, Content: c.apology}
	}
	if reply.ID == "" {
		reply.ID = newMessageID()
	}
	if reply.Role == "" {
		reply.Role = schema.RoleAssistant
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = c.now()
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.mu.Unlock()
	c.log.Debug("chat reply appended", "chars", len(reply.Content))
	return reply, nil
}

func (c *chatLog) history() []schema.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.ChatMessage(nil), c.messages...)
}

func (c *chatLog) busy() bool {
	return c.sending.Load()
}

// conversation copies the user and assistant turns of messages.
func conversation(messages []schema.ChatMessage) []schema.ChatMessage {
	out := make([]schema.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case schema.RoleUser, schema.RoleAssistant:
			out = append(out, msg)
		}
	}
	return out
}
