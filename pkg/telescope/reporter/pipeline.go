package reporter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// pipeline is the delivery state machine: in-memory queue, throttled
// flush, offline fallback and reconnect drain. It is not concurrency-safe
// by itself; the inline reporter guards it with a mutex and the worker
// runs it on a single goroutine.
type pipeline struct {
	cfg       Config
	transport Transport
	offline   OfflineStore
	limiter   *rate.Limiter
	logger    *slog.Logger

	queue  []event.Event
	online bool
}

func newPipeline(cfg Config, transport Transport, offline OfflineStore) *pipeline {
	return &pipeline{
		cfg:       cfg,
		transport: transport,
		offline:   offline,
		limiter:   rate.NewLimiter(rate.Every(cfg.FlushThrottle), 1),
		logger:    cfg.Logger,
		online:    true,
	}
}

// push appends to the queue and flushes once the batch size is reached.
func (p *pipeline) push(e event.Event) {
	p.queue = append(p.queue, e)
	if len(p.queue) >= p.cfg.BatchSize {
		p.flush(context.Background())
	}
}

// flush sends the current queue as one batch. Throttled: a second flush
// within FlushThrottle of the first is a no-op; an empty queue skips
// entirely.
func (p *pipeline) flush(ctx context.Context) {
	if len(p.queue) == 0 {
		return
	}
	if !p.limiter.Allow() {
		return
	}
	p.sendQueue(ctx)
}

// sendQueue takes the queue, clears it and attempts one POST. On failure
// the whole batch lands in the offline store.
func (p *pipeline) sendQueue(ctx context.Context) {
	batch := event.Batch{
		DSN:       p.cfg.DSN,
		Events:    p.queue,
		CreatedAt: time.Now(),
	}
	p.queue = nil

	if err := p.transport.Send(ctx, batch); err != nil {
		p.logger.Debug("report send failed, persisting batch",
			"error", err, "events", len(batch.Events))
		p.online = false
		p.persist(batch)
		return
	}
	p.online = true
	p.retryPersisted(ctx)
}

// retryPersisted resends whatever the offline store still holds, once the
// transport is known healthy. Covers batches persisted by a previous
// session and batches stranded by a transient send failure, neither of
// which produces a connectivity transition.
func (p *pipeline) retryPersisted(ctx context.Context) {
	n, err := p.offline.Len()
	if err != nil || n == 0 {
		return
	}
	p.drainOffline(ctx)
}

func (p *pipeline) persist(batch event.Batch) {
	if err := p.offline.Append(batch); err != nil {
		p.logger.Debug("offline persist failed, batch dropped", "error", err)
	}
}

// setOnline records a connectivity transition; going online drains the
// offline store.
func (p *pipeline) setOnline(ctx context.Context, online bool) {
	wasOnline := p.online
	p.online = online
	if online && !wasOnline {
		p.drainOffline(ctx)
	}
}

// drainOffline attempts one resend of everything persisted. The store is
// cleared only when the whole attempt succeeds; otherwise the items stay
// for the next reconnect. Duplicate delivery is possible and accepted:
// the contract is at-least-once.
func (p *pipeline) drainOffline(ctx context.Context) {
	batches, err := p.offline.Load()
	if err != nil {
		p.logger.Debug("offline load failed", "error", err)
		return
	}
	if len(batches) == 0 {
		return
	}

	for _, batch := range batches {
		if err := p.transport.Send(ctx, batch); err != nil {
			p.logger.Debug("offline drain interrupted", "error", err)
			p.online = false
			return
		}
	}

	if err := p.offline.Clear(); err != nil {
		p.logger.Debug("offline clear failed", "error", err)
	}
}

// destroy performs the session-end path: one final best-effort beacon of
// whatever remains queued, bypassing the throttle; persist on failure.
func (p *pipeline) destroy() {
	if len(p.queue) > 0 {
		batch := event.Batch{
			DSN:       p.cfg.DSN,
			Events:    p.queue,
			CreatedAt: time.Now(),
		}
		p.queue = nil
		if err := p.transport.SendBeacon(batch); err != nil {
			p.persist(batch)
		}
	}
	if err := p.offline.Close(); err != nil {
		p.logger.Debug("offline close failed", "error", err)
	}
}
