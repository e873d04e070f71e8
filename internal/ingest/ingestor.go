package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/telescope-hq/telescope/internal/domain"
	"github.com/telescope-hq/telescope/internal/store"
)

// GroupStore is the persistence surface the ingestor writes to.
type GroupStore interface {
	UpsertErrorGroup(ctx context.Context, u store.GroupUpsert) (*store.UpsertResult, error)
	InsertPerformance(ctx context.Context, dsn, url string, metrics map[string]float64, at time.Time) error
}

// Observer is notified after each error occurrence has been committed to
// its group. The alert engine and the live feed hub both implement it.
type Observer interface {
	GroupUpserted(ctx context.Context, oc domain.Occurrence)
}

// Result summarizes one processed report batch.
type Result struct {
	Count       int
	Errors      int
	Performance int
	Dropped     int
}

// Ingestor classifies raw events, aggregates errors into groups and fans
// occurrence notifications out to observers.
type Ingestor struct {
	groups    GroupStore
	tracker   *Tracker
	observers []Observer
	logger    *slog.Logger
}

func NewIngestor(groups GroupStore, tracker *Tracker, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		groups:  groups,
		tracker: tracker,
		logger:  logger,
	}
}

// AddObserver registers an observer. Not safe to call once ingestion has
// started; wire everything up before serving.
func (in *Ingestor) AddObserver(o Observer) {
	in.observers = append(in.observers, o)
}

// ProcessReport routes every event in a report batch. Observers run after
// the group commit; the HTTP response never waits on them beyond this call
// (notification dispatch inside the alert engine is itself asynchronous).
func (in *Ingestor) ProcessReport(ctx context.Context, req *domain.ReportRequest) Result {
	var res Result
	for i := range req.Events {
		ev := &req.Events[i]
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}

		switch {
		case ev.IsError():
			if err := in.processError(ctx, req.DSN, ev); err != nil {
				in.logger.Error("failed to ingest error event",
					"error", err, "dsn", req.DSN, "event_type", ev.Type)
				res.Dropped++
				continue
			}
			res.Errors++
		case ev.Type == domain.EventPerformance:
			if err := in.groups.InsertPerformance(ctx, req.DSN, ev.URL, ev.Metrics, ev.Timestamp); err != nil {
				in.logger.Error("failed to ingest performance event",
					"error", err, "dsn", req.DSN)
				res.Dropped++
				continue
			}
			res.Performance++
		default:
			in.logger.Debug("dropping event of unknown type",
				"dsn", req.DSN, "event_type", ev.Type)
			res.Dropped++
			continue
		}
		res.Count++
	}
	return res
}

func (in *Ingestor) processError(ctx context.Context, dsn string, ev *domain.RawEvent) error {
	fingerprint := Fingerprint(ev)

	up, err := in.groups.UpsertErrorGroup(ctx, store.GroupUpsert{
		DSN:               dsn,
		Fingerprint:       fingerprint,
		ErrorType:         ev.ErrorType,
		NormalizedMessage: NormalizeMessage(ev.Message),
		Message:           ev.Message,
		Stack:             ev.Stack,
		Frames:            ev.Frames,
		URL:               ev.URL,
		Release:           ev.Release,
		Breadcrumbs:       ev.Breadcrumbs,
		ReplayID:          ev.ReplayID,
		SeenAt:            ev.Timestamp,
	})
	if err != nil {
		return err
	}

	if in.tracker != nil {
		in.tracker.Record(ctx, dsn, ev.Timestamp)
	}

	oc := domain.Occurrence{
		DSN:         dsn,
		GroupID:     up.GroupID,
		Fingerprint: fingerprint,
		ErrorType:   ev.ErrorType,
		Message:     ev.Message,
		Count:       up.Count,
		IsNew:       up.IsNew,
		SeenAt:      ev.Timestamp,
	}
	for _, o := range in.observers {
		o.GroupUpserted(ctx, oc)
	}
	return nil
}
