package core

import "pkt.systems/notesync/schema"

// tab tracks the in-memory state of a single open document.
type tab struct {
	ID      schema.DocID
	Title   string
	Content string
}

func newTab(doc schema.Document) *tab {
	return &tab{ID: doc.ID, Title: doc.Title, Content: doc.Content}
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active, dirty bool) schema.TabSnapshot {
	return schema.TabSnapshot{
		ID:      t.ID,
		Title:   t.Title,
		Content: t.Content,
		Active:  active,
		Dirty:   dirty,
	}
}
