package reporter

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

func testReporterConfig(ft *fakeTransport) Config {
	return Config{
		DSN:             "proj-1",
		ReportURL:       "http://localhost/report",
		BatchSize:       2,
		ReportInterval:  time.Hour,
		FlushThrottle:   time.Millisecond,
		MaxOfflineItems: 100,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Transport:       ft,
		Offline:         NewMemoryStore(100),
	}
}

func waitForBatch(t *testing.T, ch chan event.Batch) event.Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return event.Batch{}
	}
}

func TestReporter_WorkerDeliversAtBatchSize(t *testing.T) {
	ft := &fakeTransport{ch: make(chan event.Batch, 4)}
	r := New(testReporterConfig(ft))
	defer r.Destroy()

	r.Push(errEvent("e1"))
	r.Push(errEvent("e2"))

	batch := waitForBatch(t, ft.ch)
	if len(batch.Events) != 2 {
		t.Errorf("batch carried %d events, want 2", len(batch.Events))
	}
	if batch.DSN != "proj-1" {
		t.Errorf("batch DSN = %q", batch.DSN)
	}
}

func TestReporter_InlineDeliversAtBatchSize(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testReporterConfig(ft)
	cfg.DisableWorker = true
	r := New(cfg)
	defer r.Destroy()

	r.Push(errEvent("e1"))
	r.Push(errEvent("e2"))

	// Inline runs on the caller's goroutine, so the send already happened.
	if ft.sentCount() != 1 {
		t.Fatalf("expected 1 send, got %d", ft.sentCount())
	}
	if len(ft.sent[0].Events) != 2 {
		t.Errorf("batch carried %d events, want 2", len(ft.sent[0].Events))
	}
}

func TestReporter_FlushSendsPartialBatch(t *testing.T) {
	ft := &fakeTransport{ch: make(chan event.Batch, 4)}
	r := New(testReporterConfig(ft))
	defer r.Destroy()

	r.Push(errEvent("only one"))
	r.Flush()

	batch := waitForBatch(t, ft.ch)
	if len(batch.Events) != 1 {
		t.Errorf("batch carried %d events, want 1", len(batch.Events))
	}
}

func TestReporter_DestroyBeaconsRemainder(t *testing.T) {
	ft := &fakeTransport{}
	r := New(testReporterConfig(ft))

	r.Push(errEvent("last words"))
	r.Destroy()

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.beacons) != 1 {
		t.Fatalf("expected 1 beacon on destroy, got %d", len(ft.beacons))
	}
}

func TestReporter_PushTrimsEvents(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testReporterConfig(ft)
	cfg.DisableWorker = true
	cfg.BatchSize = 1
	r := New(cfg)
	defer r.Destroy()

	r.Push(errEvent(strings.Repeat("m", maxMessageLen+100)))

	if ft.sentCount() != 1 {
		t.Fatalf("expected 1 send, got %d", ft.sentCount())
	}
	msg := ft.sent[0].Events[0].Message
	if !strings.HasSuffix(msg, truncationMarker) {
		t.Error("pushed event should be size-trimmed before batching")
	}
}

func waitForEmptyStore(t *testing.T, store OfflineStore) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, _ := store.Len()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("offline store still holds %d item(s)", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReporter_WorkerDrainsPersistedAtStartup(t *testing.T) {
	// Batches left behind by a previous session are resent without any
	// connectivity transition.
	store := NewMemoryStore(100)
	if err := store.Append(batchWithMessage("from last session")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ft := &fakeTransport{ch: make(chan event.Batch, 4)}
	cfg := testReporterConfig(ft)
	cfg.Offline = store
	r := New(cfg)
	defer r.Destroy()

	batch := waitForBatch(t, ft.ch)
	if batch.Events[0].Message != "from last session" {
		t.Errorf("resent batch carried %q", batch.Events[0].Message)
	}
	waitForEmptyStore(t, store)
}

func TestReporter_InlineDrainsPersistedAtStartup(t *testing.T) {
	store := NewMemoryStore(100)
	if err := store.Append(batchWithMessage("from last session")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ft := &fakeTransport{ch: make(chan event.Batch, 4)}
	cfg := testReporterConfig(ft)
	cfg.Offline = store
	cfg.DisableWorker = true
	r := New(cfg)
	defer r.Destroy()

	batch := waitForBatch(t, ft.ch)
	if batch.Events[0].Message != "from last session" {
		t.Errorf("resent batch carried %q", batch.Events[0].Message)
	}
	waitForEmptyStore(t, store)
}

// closableStore flags Close so tests can observe an abandoned worker
// releasing its offline store.
type closableStore struct {
	*MemoryStore
	mu     sync.Mutex
	closed bool
}

func (s *closableStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.MemoryStore.Close()
}

func (s *closableStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestWorker() *worker {
	return &worker{
		cmds:    make(chan command, 4),
		replies: make(chan reply, 4),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func TestWorker_LateInitTearsDownAfterCallerGivesUp(t *testing.T) {
	store := &closableStore{MemoryStore: NewMemoryStore(10)}
	cfg := testReporterConfig(&fakeTransport{})
	cfg.Offline = store
	cfg = cfg.withDefaults()

	w := newTestWorker()
	// The caller stopped waiting and went inline before init finished.
	close(w.quit)
	go w.loop(cfg, &fakeTransport{})
	w.cmds <- command{kind: cmdInit}

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned worker did not exit")
	}
	if !store.isClosed() {
		t.Error("abandoned worker left its offline store open")
	}
	select {
	case r := <-w.replies:
		if r.kind == replyReady {
			t.Error("abandoned worker must not report ready")
		}
	default:
	}
}

func TestWorker_QuitStopsRunningLoop(t *testing.T) {
	store := &closableStore{MemoryStore: NewMemoryStore(10)}
	cfg := testReporterConfig(&fakeTransport{})
	cfg.Offline = store
	cfg = cfg.withDefaults()

	w := newTestWorker()
	go w.loop(cfg, &fakeTransport{})
	w.cmds <- command{kind: cmdInit}
	if r := <-w.replies; r.kind != replyReady {
		t.Fatalf("expected ready, got %v", r.kind)
	}

	close(w.quit)

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on quit")
	}
	if !store.isClosed() {
		t.Error("worker left its offline store open")
	}
}

func TestReporter_WorkerFailureFallsBackInline(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testReporterConfig(ft)
	// A directory path that cannot be created forces the worker's offline
	// store open to fail.
	cfg.Offline = nil
	cfg.OfflinePath = string([]byte{0}) + "/impossible/offline.db"
	r := New(cfg)
	defer r.Destroy()

	// Inline fallback also fails to open the path and degrades to memory;
	// the pipeline still works.
	r.Push(errEvent("e1"))
	r.Push(errEvent("e2"))

	if ft.sentCount() != 1 {
		t.Errorf("fallback pipeline should still deliver, got %d sends", ft.sentCount())
	}
}
