// Package reporter implements the SDK delivery pipeline: batching,
// throttled flushing, offline persistence and reconnect retry.
package reporter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// Config configures one delivery pipeline.
type Config struct {
	DSN       string
	ReportURL string

	// BatchSize triggers an immediate flush when the queue reaches it.
	BatchSize int
	// ReportInterval is the background flush period bounding worst-case
	// latency for sparse traffic.
	ReportInterval time.Duration
	// FlushThrottle is the minimum interval between two flush attempts.
	FlushThrottle time.Duration

	// OfflinePath is the SQLite file for failed batches; empty keeps the
	// offline queue in memory only.
	OfflinePath string
	// MaxOfflineItems bounds the persisted FIFO.
	MaxOfflineItems int

	// ProbeInterval is how often connectivity is checked while waiting
	// for a reconnect.
	ProbeInterval time.Duration

	// DisableWorker forces the pipeline onto the caller's goroutine.
	DisableWorker bool

	Logger *slog.Logger

	// Transport and Offline override the defaults, mainly for tests.
	Transport Transport
	Offline   OfflineStore
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = 5 * time.Second
	}
	if c.FlushThrottle <= 0 {
		c.FlushThrottle = time.Second
	}
	if c.MaxOfflineItems <= 0 {
		c.MaxOfflineItems = 100
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func openOfflineStore(cfg Config) (OfflineStore, error) {
	if cfg.Offline != nil {
		return cfg.Offline, nil
	}
	if cfg.OfflinePath != "" {
		return NewSQLiteStore(cfg.OfflinePath, cfg.MaxOfflineItems)
	}
	return NewMemoryStore(cfg.MaxOfflineItems), nil
}

// Reporter is the public face of the delivery pipeline. The state machine
// runs either on a worker goroutine reached by message passing, or inline
// behind a mutex when the worker is unavailable; callers cannot tell the
// difference.
type Reporter struct {
	cfg    Config
	logger *slog.Logger

	w      *worker
	inline *inlinePipeline
}

// New builds a reporter. Worker startup failure is not an error: the
// identical logic transparently runs inline.
func New(cfg Config) *Reporter {
	cfg = cfg.withDefaults()

	transport := cfg.Transport
	if transport == nil {
		transport = NewHTTPTransport(cfg.ReportURL)
	}

	r := &Reporter{cfg: cfg, logger: cfg.Logger}

	if !cfg.DisableWorker {
		w, err := startWorker(cfg, transport)
		if err == nil {
			r.w = w
			go r.drainReplies()
			return r
		}
		cfg.Logger.Debug("worker unavailable, running pipeline inline", "error", err)
	}

	r.inline = startInline(cfg, transport)
	return r
}

// Push hands one event to the pipeline. The event is size-trimmed once,
// here, before batching. Push never returns an error: delivery faults are
// absorbed by the offline store.
func (r *Reporter) Push(e event.Event) {
	e = Trim(e)
	if r.w != nil {
		r.w.push(e)
		return
	}
	r.inline.push(e)
}

// Flush requests an immediate send of the queued events, subject to the
// flush throttle.
func (r *Reporter) Flush() {
	if r.w != nil {
		r.w.flush()
		return
	}
	r.inline.flush()
}

// Destroy stops all timers, attempts one final best-effort send of the
// remaining queue and releases resources. The only explicit teardown.
func (r *Reporter) Destroy() {
	if r.w != nil {
		r.w.destroy()
		return
	}
	r.inline.destroy()
}

// drainReplies logs the worker's advisory replies.
func (r *Reporter) drainReplies() {
	for {
		select {
		case <-r.w.done:
			return
		case rep := <-r.w.replies:
			switch rep.kind {
			case replyOffline:
				r.logger.Debug("reporter offline, batches persisted")
			case replyError:
				r.logger.Debug("reporter error", "error", rep.err)
			}
		}
	}
}

// inlinePipeline runs the identical state machine on the caller's thread,
// guarded by a mutex, with background goroutines for the interval flush
// and connectivity watch.
type inlinePipeline struct {
	mu     sync.Mutex
	p      *pipeline
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startInline(cfg Config, transport Transport) *inlinePipeline {
	offline, err := openOfflineStore(cfg)
	if err != nil {
		cfg.Logger.Debug("offline store unavailable, using memory", "error", err)
		offline = NewMemoryStore(cfg.MaxOfflineItems)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ip := &inlinePipeline{
		p:      newPipeline(cfg, transport, offline),
		cancel: cancel,
	}

	ip.wg.Add(1)
	go func() {
		defer ip.wg.Done()
		ticker := time.NewTicker(cfg.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ip.flush()
			}
		}
	}()

	// A previous session may have left persisted batches behind.
	ip.wg.Add(1)
	go func() {
		defer ip.wg.Done()
		ip.mu.Lock()
		defer ip.mu.Unlock()
		ip.p.retryPersisted(ctx)
	}()

	if prober, ok := transport.(Prober); ok {
		m := newMonitor(prober, cfg.ProbeInterval)
		ip.wg.Add(1)
		go func() {
			defer ip.wg.Done()
			go m.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case online := <-m.ch:
					ip.mu.Lock()
					ip.p.setOnline(ctx, online)
					ip.mu.Unlock()
				}
			}
		}()
	}

	return ip
}

func (ip *inlinePipeline) push(e event.Event) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.p.push(e)
}

func (ip *inlinePipeline) flush() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.p.flush(context.Background())
}

func (ip *inlinePipeline) destroy() {
	ip.cancel()
	ip.wg.Wait()
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.p.destroy()
}
