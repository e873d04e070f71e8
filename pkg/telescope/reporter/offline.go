package reporter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// OfflineStore persists failed batches across restarts. It is a bounded
// FIFO: appending past the bound evicts the oldest items; items are
// removed only after a confirmed successful resend (Clear).
type OfflineStore interface {
	Append(batch event.Batch) error
	Load() ([]event.Batch, error)
	Clear() error
	Len() (int, error)
	Close() error
}

// MemoryStore is the in-process OfflineStore used when no offline path is
// configured, and by tests. Same bounded-FIFO semantics, no persistence.
type MemoryStore struct {
	mu    sync.Mutex
	max   int
	items [][]byte
}

func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Append(batch event.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, payload)
	if over := len(s.items) - s.max; over > 0 {
		s.items = s.items[over:]
	}
	return nil
}

func (s *MemoryStore) Load() ([]event.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := make([]event.Batch, 0, len(s.items))
	for _, payload := range s.items {
		var b event.Batch
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("unmarshaling batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *MemoryStore) Close() error { return nil }
