package telescope

import (
	"sync"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// breadcrumbBuffer is a fixed-capacity ring holding the most recent
// breadcrumbs. Safe for concurrent use.
type breadcrumbBuffer struct {
	mu    sync.Mutex
	items []event.Breadcrumb
	start int
	count int
}

func newBreadcrumbBuffer(capacity int) *breadcrumbBuffer {
	return &breadcrumbBuffer{items: make([]event.Breadcrumb, capacity)}
}

// Add appends a breadcrumb, evicting the oldest when full.
func (b *breadcrumbBuffer) Add(crumb event.Breadcrumb) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count < len(b.items) {
		b.items[(b.start+b.count)%len(b.items)] = crumb
		b.count++
		return
	}
	b.items[b.start] = crumb
	b.start = (b.start + 1) % len(b.items)
}

// Snapshot returns the breadcrumbs oldest first.
func (b *breadcrumbBuffer) Snapshot() []event.Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Breadcrumb, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

func (b *breadcrumbBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *breadcrumbBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.count = 0, 0
}
