package domain

import "time"

// Alert rule types.
const (
	RuleNewError       = "new_error"
	RuleErrorThreshold = "error_threshold"
	RuleErrorSpike     = "error_spike"
)

// ValidRuleType reports whether t is a recognized alert rule type.
func ValidRuleType(t string) bool {
	switch t {
	case RuleNewError, RuleErrorThreshold, RuleErrorSpike:
		return true
	}
	return false
}

// AlertRule is a configured alerting condition scoped to one project (DSN).
// Mutated only via rule management, never by evaluation.
type AlertRule struct {
	ID              string    `json:"id"`
	DSN             string    `json:"dsn"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Threshold       int       `json:"threshold,omitempty"`
	TimeWindowMin   int       `json:"time_window_minutes,omitempty"`
	Recipients      []string  `json:"recipients"`
	CooldownMinutes int       `json:"cooldown_minutes"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Cooldown returns the rule's cooldown as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AlertHistory records one successful trigger decision. Append-only.
type AlertHistory struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name,omitempty"`
	DSN         string    `json:"dsn"`
	Fingerprint string    `json:"fingerprint"`
	Message     string    `json:"message,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
	EmailSent   bool      `json:"email_sent"`
}

// CreateRuleRequest is the body for POST /alerts/rules.
type CreateRuleRequest struct {
	DSN             string   `json:"dsn"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Threshold       int      `json:"threshold,omitempty"`
	TimeWindowMin   int      `json:"time_window_minutes,omitempty"`
	Recipients      []string `json:"recipients"`
	CooldownMinutes int      `json:"cooldown_minutes"`
}

// UpdateRuleRequest is the body for PATCH /alerts/rules/{id}. Nil fields
// are left unchanged.
type UpdateRuleRequest struct {
	Name            *string   `json:"name,omitempty"`
	Threshold       *int      `json:"threshold,omitempty"`
	TimeWindowMin   *int      `json:"time_window_minutes,omitempty"`
	Recipients      *[]string `json:"recipients,omitempty"`
	CooldownMinutes *int      `json:"cooldown_minutes,omitempty"`
	Enabled         *bool     `json:"enabled,omitempty"`
}
