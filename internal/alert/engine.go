// Package alert evaluates configured rules against every ingested error
// and dispatches notifications under a cooldown policy.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telescope-hq/telescope/internal/domain"
)

// RuleStore is the persistence surface the engine reads rules from and
// appends history to.
type RuleStore interface {
	EnabledRulesForDSN(ctx context.Context, dsn string) ([]domain.AlertRule, error)
	InsertAlertHistory(ctx context.Context, h *domain.AlertHistory) error
	MarkAlertHistoryEmailFailed(ctx context.Context, id string) error
}

// WindowCounter counts error occurrences in time windows, for threshold
// and spike rules.
type WindowCounter interface {
	CountRange(ctx context.Context, dsn string, from, to time.Time) (int64, error)
	CountSince(ctx context.Context, dsn string, since time.Time) (int64, error)
}

const (
	// defaultWindow applies when a windowed rule has no TimeWindowMin.
	defaultWindow = 5 * time.Minute
	// spikeFloor is the minimum recent-window count before a spike rule
	// may trigger, so a single error over an empty baseline stays quiet.
	spikeFloor = 10
)

// Engine is an ingest observer: after each group commit it evaluates every
// enabled rule scoped to the project. Cooldown state lives in Redis keys
// with the cooldown as TTL; acquisition is a single SET NX so concurrent
// ingestions cannot double-trigger a rule. Triggered notifications are
// handed to the dispatcher pool.
type Engine struct {
	store       RuleStore
	counter     WindowCounter
	redisClient *redis.Client
	dispatcher  *Dispatcher
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(store RuleStore, counter WindowCounter, redisClient *redis.Client, dispatcher *Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		store:       store,
		counter:     counter,
		redisClient: redisClient,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// GroupUpserted implements ingest.Observer.
func (e *Engine) GroupUpserted(ctx context.Context, oc domain.Occurrence) {
	rules, err := e.store.EnabledRulesForDSN(ctx, oc.DSN)
	if err != nil {
		e.logger.Error("failed to load alert rules", "error", err, "dsn", oc.DSN)
		return
	}

	for i := range rules {
		rule := rules[i]
		matched, err := e.evaluate(ctx, &rule, oc)
		if err != nil {
			e.logger.Error("rule evaluation failed",
				"error", err, "rule_id", rule.ID, "rule_type", rule.Type)
			continue
		}
		if !matched {
			continue
		}
		e.trigger(ctx, &rule, oc)
	}
}

func (e *Engine) evaluate(ctx context.Context, rule *domain.AlertRule, oc domain.Occurrence) (bool, error) {
	switch rule.Type {
	case domain.RuleNewError:
		return oc.IsNew, nil

	case domain.RuleErrorThreshold:
		if rule.TimeWindowMin <= 0 {
			return oc.Count >= int64(rule.Threshold), nil
		}
		since := e.now().Add(-time.Duration(rule.TimeWindowMin) * time.Minute)
		n, err := e.counter.CountSince(ctx, oc.DSN, since)
		if err != nil {
			return false, err
		}
		return n >= int64(rule.Threshold), nil

	case domain.RuleErrorSpike:
		window := defaultWindow
		if rule.TimeWindowMin > 0 {
			window = time.Duration(rule.TimeWindowMin) * time.Minute
		}
		now := e.now()
		recent, err := e.counter.CountRange(ctx, oc.DSN, now.Add(-window), now)
		if err != nil {
			return false, err
		}
		baseline, err := e.counter.CountRange(ctx, oc.DSN, now.Add(-2*window), now.Add(-window))
		if err != nil {
			return false, err
		}
		if recent < spikeFloor {
			return false, nil
		}
		if baseline == 0 {
			return true, nil
		}
		return recent > int64(rule.Threshold)*baseline, nil

	default:
		return false, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// cooldownKey scopes new_error cooldowns per fingerprint so one noisy
// group never silences alerts about a different new group; project-wide
// conditions share one key per rule.
func cooldownKey(rule *domain.AlertRule, fingerprint string) string {
	if rule.Type == domain.RuleNewError {
		return fmt.Sprintf("alert:cd:%s:%s", rule.ID, fingerprint)
	}
	return fmt.Sprintf("alert:cd:%s", rule.ID)
}

func (e *Engine) trigger(ctx context.Context, rule *domain.AlertRule, oc domain.Occurrence) {
	cooldown := rule.Cooldown()
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	now := e.now()
	acquired, err := e.redisClient.SetNX(ctx, cooldownKey(rule, oc.Fingerprint),
		now.UnixMilli(), cooldown).Result()
	if err != nil {
		e.logger.Error("failed to acquire alert cooldown",
			"error", err, "rule_id", rule.ID)
		return
	}
	if !acquired {
		return
	}

	history := &domain.AlertHistory{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		DSN:         oc.DSN,
		Fingerprint: oc.Fingerprint,
		Message:     oc.Message,
		TriggeredAt: now,
		EmailSent:   true,
	}
	if err := e.store.InsertAlertHistory(ctx, history); err != nil {
		e.logger.Error("failed to record alert history",
			"error", err, "rule_id", rule.ID)
		// Cooldown is already held; suppress notification rather than
		// alert without a record.
		return
	}

	e.logger.Info("alert triggered",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"rule_type", rule.Type,
		"dsn", oc.DSN,
		"fingerprint", oc.Fingerprint,
	)

	// Dispatch is asynchronous: the ingestion response never waits on
	// notification delivery. A failure is recorded on the history row by
	// the dispatcher and not retried.
	e.dispatcher.Submit(dispatchJob{
		notification: Notification{
			Rule:        *rule,
			Occurrence:  oc,
			TriggeredAt: now,
		},
		historyID: history.ID,
	})
}
