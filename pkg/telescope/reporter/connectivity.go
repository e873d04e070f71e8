package reporter

import (
	"context"
	"time"
)

// Prober reports whether the ingestion endpoint is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// monitor polls the endpoint and emits a value on transitions between
// online and offline. The channel carries the new state.
type monitor struct {
	prober   Prober
	interval time.Duration
	ch       chan bool
}

func newMonitor(prober Prober, interval time.Duration) *monitor {
	return &monitor{
		prober:   prober,
		interval: interval,
		ch:       make(chan bool, 1),
	}
}

// run polls until ctx is cancelled. Transitions only: steady states are
// not re-announced.
func (m *monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	online := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.prober.Probe(ctx)
			if now == online {
				continue
			}
			online = now
			select {
			case m.ch <- online:
			default:
			}
		}
	}
}
