package core

import (
	"context"

	"pkt.systems/notesync/schema"
)

// DocumentStore is the remote document service. Every call is a suspension
// point: the workspace never holds its lock across one.
type DocumentStore interface {
	List(ctx context.Context) ([]schema.Document, error)
	// Get fails with schema.ErrNotFound when id is unknown.
	Get(ctx context.Context, id schema.DocID) (schema.Document, error)
	Create(ctx context.Context, title, content string) (schema.Document, error)
	// Update must not touch caller state on failure.
	Update(ctx context.Context, id schema.DocID, title, content string) error
}

// Responder produces assistant replies for the chat log.
type Responder interface {
	SendMessage(ctx context.Context, history []schema.ChatMessage, documentID schema.DocID) (schema.ChatMessage, error)
}
