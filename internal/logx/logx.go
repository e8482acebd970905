package logx

import (
	"context"

	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

type contextKey int

const tabKey contextKey = iota

// WithTab annotates the context logger with the tab id if present.
func WithTab(ctx context.Context, id schema.DocID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id.IsZero() {
		return log
	}
	if current, ok := ctx.Value(tabKey).(schema.DocID); ok && current == id {
		return log
	}
	return log.With("tab", id.String())
}

// Tab annotates an existing logger with the tab id.
func Tab(log pslog.Logger, id schema.DocID) pslog.Logger {
	if log == nil || id.IsZero() {
		return log
	}
	return log.With("tab", id.String())
}

// WithDocument annotates the logger with document metadata when available.
func WithDocument(log pslog.Logger, doc schema.Document) pslog.Logger {
	if log == nil {
		return log
	}
	if !doc.ID.IsZero() {
		log = log.With("doc", doc.ID.String())
	}
	if doc.Title != "" {
		log = log.With("title", doc.Title)
	}
	return log
}

// WithTrigger annotates the logger with the save trigger.
func WithTrigger(log pslog.Logger, trigger schema.SaveTrigger) pslog.Logger {
	if log == nil || trigger == "" {
		return log
	}
	return log.With("trigger", string(trigger))
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, id schema.DocID) context.Context {
	if ctx == nil || id.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, tabKey, id)
}

// ContextWithTabLogger attaches the logger and tab marker to the context.
func ContextWithTabLogger(ctx context.Context, log pslog.Logger, id schema.DocID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ctx, id)
}

// TabFromContext returns the tab marker set by ContextWithTab.
func TabFromContext(ctx context.Context) (schema.DocID, bool) {
	if ctx == nil {
		return schema.DocID{}, false
	}
	id, ok := ctx.Value(tabKey).(schema.DocID)
	return id, ok && !id.IsZero()
}
