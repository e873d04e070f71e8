package instrument

import (
	"context"
	"log/slog"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// LogAdapter wraps the process-default slog handler. Warn-and-above log
// records become breadcrumbs; every record is forwarded to the previous
// handler unchanged.
type LogAdapter struct {
	prev      *slog.Logger
	installed bool
}

func NewLogAdapter() *LogAdapter {
	return &LogAdapter{}
}

func (a *LogAdapter) Name() string { return "slog" }

func (a *LogAdapter) Install(sink Sink) error {
	if a.installed {
		return nil
	}
	a.prev = slog.Default()
	slog.SetDefault(slog.New(&chainHandler{
		next: a.prev.Handler(),
		sink: sink,
	}))
	a.installed = true
	return nil
}

func (a *LogAdapter) Uninstall() error {
	if !a.installed {
		return nil
	}
	slog.SetDefault(a.prev)
	a.prev = nil
	a.installed = false
	return nil
}

// chainHandler observes records then hands them to the wrapped handler.
type chainHandler struct {
	next slog.Handler
	sink Sink
}

func (h *chainHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *chainHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelWarn {
		observe(func() {
			h.sink.AddBreadcrumb(event.Breadcrumb{
				Type:      "log",
				Category:  rec.Level.String(),
				Message:   rec.Message,
				Timestamp: time.Now(),
			})
		})
	}
	return h.next.Handle(ctx, rec)
}

func (h *chainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &chainHandler{next: h.next.WithAttrs(attrs), sink: h.sink}
}

func (h *chainHandler) WithGroup(name string) slog.Handler {
	return &chainHandler{next: h.next.WithGroup(name), sink: h.sink}
}
