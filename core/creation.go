package core

import (
	"context"
	"strconv"

	"golang.org/x/sync/semaphore"

	"pkt.systems/notesync/schema"
)

// CreationGuard admits at most one document creation at a time. Calls that
// arrive while one is outstanding are dropped, not queued.
type CreationGuard struct {
	sem *semaphore.Weighted
}

// NewCreationGuard constructs an idle guard.
func NewCreationGuard() *CreationGuard {
	return &CreationGuard{sem: semaphore.NewWeighted(1)}
}

// Admit runs fn unless another call is in flight. It reports whether fn ran.
// The guard is released when fn returns, whatever the outcome.
func (g *CreationGuard) Admit(ctx context.Context, fn func(context.Context) error) (bool, error) {
	if !g.sem.TryAcquire(1) {
		return false, nil
	}
	defer g.sem.Release(1)
	return true, fn(ctx)
}

// Busy reports whether a creation is currently in flight.
func (g *CreationGuard) Busy() bool {
	if g.sem.TryAcquire(1) {
		g.sem.Release(1)
		return false
	}
	return true
}

// NextTitle builds "<base><n><ext>" where n is one past the largest numeric
// id among ids. Text and local ids are ignored.
func NextTitle(ids []schema.DocID, base, ext string) string {
	var max int64
	for _, id := range ids {
		if n, ok := id.Numeric(); ok && n > max {
			max = n
		}
	}
	return base + strconv.FormatInt(max+1, 10) + ext
}
