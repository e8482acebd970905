package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// Hub broadcasts document changes to stream subscribers and keeps a bounded
// history so reconnecting clients can replay what they missed.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []schema.DocumentEvent
	subs        map[chan schema.DocumentEvent]struct{}
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan schema.DocumentEvent]struct{}),
		historySize: historySize,
		now:         time.Now,
	}
}

// Publish assigns the next sequence number and fans the event out.
func (h *Hub) Publish(ctx context.Context, event schema.DocumentEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	log := pslog.Ctx(ctx).With("doc", event.ID.String())
	log.Trace("hub document event", "type", event.Type, "seq", event.Seq)
	if dropped > 0 {
		log.Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
func (h *Hub) Subscribe(ctx context.Context) (<-chan schema.DocumentEvent, func()) {
	ch := make(chan schema.DocumentEvent, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	log := pslog.Ctx(ctx)
	log.Debug("hub subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Debug("hub unsubscribe", "subs", remaining)
		})
	}
}

// Replay returns retained events after the provided seq.
func (h *Hub) Replay(after uint64) []schema.DocumentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]schema.DocumentEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}
