package instrument

import (
	"runtime"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// RuntimeAdapter periodically samples runtime statistics into
// performance events. Its entry point is its own ticker: Install starts
// the sampling goroutine, Uninstall stops it.
type RuntimeAdapter struct {
	interval  time.Duration
	stop      chan struct{}
	installed bool
}

func NewRuntimeAdapter(interval time.Duration) *RuntimeAdapter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RuntimeAdapter{interval: interval}
}

func (a *RuntimeAdapter) Name() string { return "runtime" }

func (a *RuntimeAdapter) Install(sink Sink) error {
	if a.installed {
		return nil
	}
	a.stop = make(chan struct{})
	a.installed = true

	go func(stop chan struct{}) {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				observe(func() { sample(sink) })
			}
		}
	}(a.stop)

	return nil
}

func (a *RuntimeAdapter) Uninstall() error {
	if !a.installed {
		return nil
	}
	close(a.stop)
	a.stop = nil
	a.installed = false
	return nil
}

func sample(sink Sink) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	sink.CaptureEvent(event.Event{
		Type:      event.TypePerformance,
		Timestamp: time.Now(),
		Metrics: map[string]float64{
			"goroutines":     float64(runtime.NumGoroutine()),
			"heap_alloc":     float64(m.HeapAlloc),
			"heap_objects":   float64(m.HeapObjects),
			"gc_cycles":      float64(m.NumGC),
			"gc_pause_total": float64(m.PauseTotalNs),
		},
	})
}
