// Package telescope is the client SDK: capture errors, messages and
// performance samples, decorate them with breadcrumbs, and hand them to a
// batching delivery pipeline.
package telescope

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
	"github.com/telescope-hq/telescope/pkg/telescope/instrument"
	"github.com/telescope-hq/telescope/pkg/telescope/reporter"
)

// Re-exported wire types so callers only import this package.
type (
	Breadcrumb = event.Breadcrumb
	Event      = event.Event
	StackFrame = event.StackFrame
)

const maxCapturedFrames = 64

// Client is the context object tying together the breadcrumb buffer, the
// filter chain and the delivery pipeline. One Client per monitored
// application; safe for concurrent use.
type Client struct {
	opts   Options
	crumbs *breadcrumbBuffer
	rep    *reporter.Reporter

	rng func() float64

	mu       sync.Mutex
	adapters []instrument.Adapter
	closed   bool
}

// New validates the options and starts the delivery pipeline.
func New(opts Options) (*Client, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rep := reporter.New(reporter.Config{
		DSN:             opts.DSN,
		ReportURL:       opts.ReportURL,
		BatchSize:       opts.BatchSize,
		ReportInterval:  opts.ReportInterval,
		FlushThrottle:   opts.FlushThrottle,
		OfflinePath:     opts.OfflinePath,
		MaxOfflineItems: opts.MaxOfflineItems,
		DisableWorker:   opts.DisableWorker,
		Logger:          opts.Logger,
	})

	return &Client{
		opts:   opts,
		crumbs: newBreadcrumbBuffer(opts.MaxBreadcrumbs),
		rep:    rep,
		rng:    rand.Float64,
	}, nil
}

// Install activates instrumentation adapters. They are uninstalled in
// reverse order by Close.
func (c *Client) Install(adapters ...instrument.Adapter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range adapters {
		if err := a.Install(c); err != nil {
			return fmt.Errorf("installing adapter: %w", err)
		}
		c.adapters = append(c.adapters, a)
	}
	return nil
}

// AddBreadcrumb records an action into the bounded trail. Implements
// instrument.Sink.
func (c *Client) AddBreadcrumb(crumb Breadcrumb) {
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = time.Now().UTC()
	}
	c.crumbs.Add(crumb)
}

// CaptureEvent runs an already-built event through the filter chain and,
// if it survives, pushes it to the pipeline. Implements instrument.Sink.
func (c *Client) CaptureEvent(e Event) {
	c.capture(e)
}

// CaptureError captures err with the current goroutine's stack.
func (c *Client) CaptureError(err error) {
	if err == nil {
		return
	}
	c.capture(Event{
		Type:      event.TypeError,
		Message:   err.Error(),
		ErrorType: errorTypeName(err),
		Frames:    captureFrames(3),
		Stack:     string(debug.Stack()),
	})
}

// CaptureMessage captures a free-form message event.
func (c *Client) CaptureMessage(msg string) {
	c.capture(Event{Type: event.TypeMessage, Message: msg})
}

// CapturePerformance captures one set of named metric samples.
func (c *Client) CapturePerformance(metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	c.capture(Event{Type: event.TypePerformance, Metrics: metrics})
}

// CapturePanic records a recovered panic value as an error event. The
// queue is flushed immediately since the process may be unwinding.
func (c *Client) CapturePanic(v any) {
	c.capture(Event{
		Type:      event.TypeError,
		Message:   fmt.Sprint(v),
		ErrorType: "panic",
		Frames:    captureFrames(3),
		Stack:     string(debug.Stack()),
	})
	c.rep.Flush()
}

// Recover is a deferred panic hook: it captures the panic and re-panics
// so the program still crashes.
//
//	defer client.Recover()
func (c *Client) Recover() {
	if v := recover(); v != nil {
		c.CapturePanic(v)
		panic(v)
	}
}

// HTTPHandler wraps next so panics in request handling are captured with
// the request URL before re-panicking.
func (c *Client) HTTPHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				c.capture(Event{
					Type:      event.TypeError,
					Message:   fmt.Sprint(v),
					ErrorType: "panic",
					URL:       r.URL.String(),
					Frames:    captureFrames(3),
					Stack:     string(debug.Stack()),
				})
				c.rep.Flush()
				panic(v)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Flush requests an immediate send of queued events.
func (c *Client) Flush() {
	c.rep.Flush()
}

// Close uninstalls adapters, attempts one final send and releases the
// pipeline. The client is unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	adapters := c.adapters
	c.adapters = nil
	c.mu.Unlock()

	for i := len(adapters) - 1; i >= 0; i-- {
		adapters[i].Uninstall()
	}
	c.rep.Destroy()
}

// capture stamps, filters, samples and enqueues one event.
func (c *Client) capture(e Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Environment == "" {
		e.Environment = c.opts.Environment
	}
	if e.Release == "" {
		e.Release = c.opts.Release
	}
	if e.Type == event.TypeError && e.Breadcrumbs == nil {
		e.Breadcrumbs = c.crumbs.Snapshot()
	}

	if !c.shouldSend(e) {
		return
	}
	if c.opts.BeforeSend != nil {
		out := c.opts.BeforeSend(e)
		if out == nil {
			return
		}
		e = *out
	}
	c.rep.Push(e)
}

// shouldSend applies the URL allow/ignore lists, the error ignore list
// and per-type sampling.
func (c *Client) shouldSend(e Event) bool {
	if e.URL != "" {
		if len(c.opts.AllowURLs) > 0 && !anyMatch(c.opts.AllowURLs, e.URL) {
			return false
		}
		if anyMatch(c.opts.IgnoreURLs, e.URL) {
			return false
		}
	}

	rate := c.opts.SampleRate
	switch e.Type {
	case event.TypeError:
		if anyMatch(c.opts.IgnoreErrors, e.Message) || anyMatch(c.opts.IgnoreErrors, e.ErrorType) {
			return false
		}
		rate = c.opts.ErrorSampleRate
	case event.TypePerformance:
		rate = c.opts.PerformanceSampleRate
	}

	return rate >= 1 || c.rng() < rate
}

// captureFrames walks the caller's stack, skipping the SDK's own frames.
func captureFrames(skip int) []event.StackFrame {
	pcs := make([]uintptr, maxCapturedFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]event.StackFrame, 0, n)
	for {
		fr, more := frames.Next()
		out = append(out, event.StackFrame{
			Function: fr.Function,
			File:     fr.File,
			Line:     fr.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// errorTypeName reports the most specific type in err's chain, or the
// dynamic type name for plain errors.
func errorTypeName(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		err = e
	}
	return fmt.Sprintf("%T", err)
}
