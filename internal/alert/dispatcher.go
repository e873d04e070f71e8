package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// dispatchJob is one notification awaiting delivery, tied to the history
// row recorded at trigger time.
type dispatchJob struct {
	notification Notification
	historyID    string
}

// historyMarker is the slice of the store the dispatcher needs to record
// delivery failures.
type historyMarker interface {
	MarkAlertHistoryEmailFailed(ctx context.Context, id string) error
}

// Dispatcher runs a fixed pool of worker goroutines delivering alert
// notifications, so a burst of triggers never spawns an unbounded number
// of senders. Ingestion only ever blocks on the job channel, never on a
// slow SMTP server or webhook endpoint.
type Dispatcher struct {
	numWorkers int
	jobs       chan dispatchJob
	sender     Sender
	store      historyMarker
	logger     *slog.Logger
	wg         sync.WaitGroup

	// sendTimeout bounds one delivery attempt.
	sendTimeout time.Duration
}

func NewDispatcher(numWorkers int, sender Sender, store historyMarker, logger *slog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Dispatcher{
		numWorkers:  numWorkers,
		jobs:        make(chan dispatchJob, numWorkers*2),
		sender:      sender,
		store:       store,
		logger:      logger,
		sendTimeout: 30 * time.Second,
	}
}

// Start launches the worker goroutines. They read from the jobs channel
// until Stop closes it.
func (d *Dispatcher) Start() {
	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("alert dispatcher started", "num_workers", d.numWorkers)
}

// Submit hands a notification to the pool. Blocks when every worker is
// busy and the buffer is full.
func (d *Dispatcher) Submit(job dispatchJob) {
	d.jobs <- job
}

// Stop closes the jobs channel and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	d.wg.Wait()
	d.logger.Info("alert dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(job)
	}
}

// deliver attempts one notification. A failure is recorded on the history
// row and not retried.
func (d *Dispatcher) deliver(job dispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, job.notification); err != nil {
		d.logger.Error("notification dispatch failed",
			"error", err,
			"rule_id", job.notification.Rule.ID,
			"recipients", len(job.notification.Rule.Recipients),
		)
		if err := d.store.MarkAlertHistoryEmailFailed(ctx, job.historyID); err != nil {
			d.logger.Error("failed to mark history row",
				"error", err, "history_id", job.historyID)
		}
	}
}
