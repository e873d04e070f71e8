// Package retention runs the periodic cleanup of aged telemetry.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/telescope-hq/telescope/internal/ingest"
	"github.com/telescope-hq/telescope/internal/store"
)

// Janitor deletes alert history and performance events past the retention
// window and trims the Redis occurrence series.
type Janitor struct {
	store     *store.PostgresStore
	tracker   *ingest.Tracker
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

func NewJanitor(s *store.PostgresStore, tr *ingest.Tracker, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:     s,
		tracker:   tr,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the cleanup on the given cron schedule and starts the
// scheduler.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("retention job scheduled", "schedule", schedule, "retention", j.retention)
	return nil
}

// Stop halts the scheduler and waits for a running cleanup to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs a single cleanup pass.
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)

	purgedHistory, err := j.store.PurgeAlertHistoryBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to purge alert history", "error", err)
	}

	purgedPerf, err := j.store.PurgePerformanceBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to purge performance events", "error", err)
	}

	if j.tracker != nil {
		j.tracker.PurgeBefore(ctx, cutoff)
	}

	j.logger.Info("retention pass complete",
		"cutoff", cutoff,
		"alert_history_purged", purgedHistory,
		"performance_purged", purgedPerf,
	)
}
