package schema

import "time"

// TabEventType describes a tab lifecycle change.
type TabEventType string

const (
	// TabEventOpened indicates a tab was appended to the session.
	TabEventOpened TabEventType = "opened"
	// TabEventCreated indicates a tab was opened for a newly created document.
	TabEventCreated TabEventType = "created"
	// TabEventActivated indicates the active tab changed.
	TabEventActivated TabEventType = "activated"
	// TabEventClosed indicates a tab was removed from the session.
	TabEventClosed TabEventType = "closed"
	// TabEventRefreshed indicates a tab was updated from the store.
	TabEventRefreshed TabEventType = "refreshed"
)

// TabEvent is emitted whenever the tab set or selection changes.
type TabEvent struct {
	Type      TabEventType
	Tab       TabSnapshot
	ActiveTab DocID
}

// SaveTrigger identifies what dispatched a save.
type SaveTrigger string

const (
	// SaveTriggerIdle is the idle debounce timer.
	SaveTriggerIdle SaveTrigger = "idle"
	// SaveTriggerSweep is the periodic dirty sweep.
	SaveTriggerSweep SaveTrigger = "sweep"
	// SaveTriggerManual is an explicit save command.
	SaveTriggerManual SaveTrigger = "manual"
)

// SaveEventType describes a save outcome.
type SaveEventType string

const (
	// SaveEventSaved indicates the store acknowledged the save.
	SaveEventSaved SaveEventType = "saved"
	// SaveEventFailed indicates the store rejected or missed the save.
	SaveEventFailed SaveEventType = "failed"
)

// SaveEvent is emitted after every dispatched save.
type SaveEvent struct {
	Type    SaveEventType
	ID      DocID
	Title   string
	Trigger SaveTrigger
	// StillDirty is set when an edit arrived while the save was in flight.
	StillDirty bool
	Err        error
}

// DocumentEventType describes a change to a stored document.
type DocumentEventType string

const (
	// DocumentCreated indicates a document was added to the store.
	DocumentCreated DocumentEventType = "created"
	// DocumentUpdated indicates a stored document changed.
	DocumentUpdated DocumentEventType = "updated"
	// DocumentDeleted indicates a document was removed from the store.
	DocumentDeleted DocumentEventType = "deleted"
)

// DocumentEvent is streamed by the server on GET /api/events.
type DocumentEvent struct {
	Seq       uint64            `json:"seq"`
	Type      DocumentEventType `json:"type"`
	ID        DocID             `json:"document_id"`
	Title     string            `json:"title,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
