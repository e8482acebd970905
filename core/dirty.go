package core

import (
	"sort"

	"pkt.systems/notesync/schema"
)

// dirtyTracker records which tabs hold edits the store has not acknowledged.
// Each mark bumps a per-tab generation so a save only clears the flag when no
// edit arrived after it was dispatched.
type dirtyTracker struct {
	gens map[schema.DocID]uint64
	seq  uint64
	// order preserves first-marked order for deterministic sweeps.
	order map[schema.DocID]uint64
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{
		gens:  make(map[schema.DocID]uint64),
		order: make(map[schema.DocID]uint64),
	}
}

func (d *dirtyTracker) mark(id schema.DocID) uint64 {
	d.seq++
	if _, ok := d.gens[id]; !ok {
		d.order[id] = d.seq
	}
	d.gens[id] = d.seq
	return d.seq
}

func (d *dirtyTracker) generation(id schema.DocID) (uint64, bool) {
	gen, ok := d.gens[id]
	return gen, ok
}

// clearIf drops the flag when gen is still the latest edit for id.
func (d *dirtyTracker) clearIf(id schema.DocID, gen uint64) bool {
	current, ok := d.gens[id]
	if !ok {
		return true
	}
	if current != gen {
		return false
	}
	delete(d.gens, id)
	delete(d.order, id)
	return true
}

func (d *dirtyTracker) forget(id schema.DocID) {
	delete(d.gens, id)
	delete(d.order, id)
}

func (d *dirtyTracker) has(id schema.DocID) bool {
	_, ok := d.gens[id]
	return ok
}

func (d *dirtyTracker) len() int {
	return len(d.gens)
}

// ids returns dirty ids in the order they first became dirty.
func (d *dirtyTracker) ids() []schema.DocID {
	out := make([]schema.DocID, 0, len(d.gens))
	for id := range d.gens {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return d.order[out[i]] < d.order[out[j]]
	})
	return out
}

func (d *dirtyTracker) rekey(from, to schema.DocID) {
	gen, ok := d.gens[from]
	if !ok {
		return
	}
	d.gens[to] = gen
	d.order[to] = d.order[from]
	delete(d.gens, from)
	delete(d.order, from)
}
