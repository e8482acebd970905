package core

import "pkt.systems/notesync/schema"

// EventSink receives tab and save events from the workspace.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnSaveEvent(event schema.SaveEvent)
}
