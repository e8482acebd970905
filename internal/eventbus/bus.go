package eventbus

import (
	"context"
	"sync"
	"time"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventSave carries autosave and manual save outcomes.
	EventSave EventType = "save"
)

// Event is a workspace event as seen by subscribers.
type Event struct {
	Type EventType
	Tab  schema.TabEvent
	Save schema.SaveEvent
	At   time.Time
}

// Bus fans workspace events out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
	now   func() time.Time
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
		now:   time.Now,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
// Cancel closes the channel and is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// OnTabEvent implements core.EventSink.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: EventTab, Tab: event})
}

// OnSaveEvent implements core.EventSink.
func (b *Bus) OnSaveEvent(event schema.SaveEvent) {
	b.publish(Event{Type: EventSave, Save: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	event.At = b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
