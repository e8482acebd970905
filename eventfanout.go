package notesync

import (
	"pkt.systems/notesync/core"
	"pkt.systems/notesync/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnSaveEvent(event schema.SaveEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSaveEvent(event)
	}
}
