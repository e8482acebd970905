package core

import (
	"time"

	"pkt.systems/pslog"
)

// WorkspaceDeps captures the collaborators of a workspace. Store is
// required; the rest are optional.
type WorkspaceDeps struct {
	Store     DocumentStore
	Responder Responder
	EventSink EventSink
	Timers    Timers
	Logger    pslog.Logger
	Now       func() time.Time
}
