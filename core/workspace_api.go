package core

import (
	"context"

	"pkt.systems/notesync/schema"
)

// Workspace is the editing session: open tabs, the directory tree, the
// autosave loop and the chat log, kept consistent with each other.
type Workspace interface {
	Bootstrap(ctx context.Context) error
	Open(doc schema.Document) (schema.TabSnapshot, error)
	SelectOrOpen(ctx context.Context, id schema.DocID) (schema.TabSnapshot, error)
	Activate(id schema.DocID) error
	CloseTab(id schema.DocID) error
	Edit(id schema.DocID, content string) error
	EditActive(content string) error
	Rename(id schema.DocID, title string) error
	NewDocument(ctx context.Context) (schema.Document, error)
	Save(ctx context.Context) error
	Flush(ctx context.Context) error
	Refresh(ctx context.Context) (RefreshResult, error)
	SendChat(ctx context.Context, text string) (schema.ChatMessage, error)
	ToggleFolder(id schema.DocID) error
	AddFolder(name string) schema.DirectoryEntry
	Tabs() []schema.TabSnapshot
	ActiveTab() (schema.TabSnapshot, bool)
	Directory() []schema.DirectoryEntry
	Dirty() []schema.DocID
	ChatHistory() []schema.ChatMessage
	Close(ctx context.Context) error
}

// RefreshResult summarizes one reconciliation pass against the store.
type RefreshResult struct {
	Listed     int
	Added      int
	Updated    int
	Reconciled int
}
