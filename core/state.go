package core

import (
	"sync"

	"pkt.systems/notesync/schema"
)

// state is everything the workspace mutates. All fields are guarded by mu,
// and mu is never held across a DocumentStore call, so every suspension
// point observes a consistent tab set, dirty set and directory.
type state struct {
	mu         sync.Mutex
	tabs       *tabSession
	dirty      *dirtyTracker
	dir        *directoryIndex
	lastEdited schema.DocID

	// acks counts store acknowledgements per tab and saving counts saves
	// in flight. Refresh compares both across its List call.
	acks   map[schema.DocID]uint64
	saving map[schema.DocID]int
	// reconciling holds local tabs whose remote create is outstanding.
	reconciling map[schema.DocID]struct{}
}

func newState() *state {
	return &state{
		tabs:  newTabSession(),
		dirty: newDirtyTracker(),
		dir:   newDirectoryIndex(),

		acks:        make(map[schema.DocID]uint64),
		saving:      make(map[schema.DocID]int),
		reconciling: make(map[schema.DocID]struct{}),
	}
}

// beginSaveLocked records a save about to reach the store. Local ids never
// reach it. Caller holds mu.
func (s *state) beginSaveLocked(id schema.DocID) {
	if id.IsLocal() {
		return
	}
	s.saving[id]++
}

// endSaveLocked settles a save started with beginSaveLocked. Caller holds mu.
func (s *state) endSaveLocked(id schema.DocID, acked bool) {
	if id.IsLocal() {
		return
	}
	if s.saving[id] <= 1 {
		delete(s.saving, id)
	} else {
		s.saving[id]--
	}
	if acked {
		s.acks[id]++
	}
}

// ackSnapshotLocked copies the acknowledgement counters. Caller holds mu.
func (s *state) ackSnapshotLocked() map[schema.DocID]uint64 {
	out := make(map[schema.DocID]uint64, len(s.acks))
	for id, n := range s.acks {
		out[id] = n
	}
	return out
}

// settledLocked reports whether a listing taken when acks were before can
// still be applied to id: no save is running and none finished since.
// Caller holds mu.
func (s *state) settledLocked(id schema.DocID, before map[schema.DocID]uint64) bool {
	return s.saving[id] == 0 && s.acks[id] == before[id]
}
