package schema

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist remotely.
	ErrNotFound = errors.New("document not found")
	// ErrSave indicates a document update failed.
	ErrSave = errors.New("document save failed")
	// ErrCreate indicates a document create failed.
	ErrCreate = errors.New("document create failed")
	// ErrFetch indicates a document list or get failed.
	ErrFetch = errors.New("document fetch failed")
	// ErrCannotCloseLastTab indicates a close was refused to keep one tab open.
	ErrCannotCloseLastTab = errors.New("cannot close last tab")
	// ErrTabNotFound indicates a requested tab is not open.
	ErrTabNotFound = errors.New("tab not found")
	// ErrCreateInFlight indicates a create was dropped because another is outstanding.
	ErrCreateInFlight = errors.New("document create already in flight")
	// ErrLocalDocument indicates the document has no remote id to save to.
	ErrLocalDocument = errors.New("document has no remote id")
	// ErrInvalidID indicates a malformed document id.
	ErrInvalidID = errors.New("invalid document id")
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrChat indicates the chat responder failed.
	ErrChat = errors.New("chat request failed")
	// ErrChatBusy indicates a chat message is already being sent.
	ErrChatBusy = errors.New("chat is busy")
	// ErrEmptyMessage indicates the chat input was blank.
	ErrEmptyMessage = errors.New("empty message")
	// ErrClosed indicates the workspace has been torn down.
	ErrClosed = errors.New("workspace closed")
)
