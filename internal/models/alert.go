package models

import "time"

// Op is a comparison operator an AlertRule evaluates with.
type Op string

const (
	OpGT Op = "gt"
	OpLT Op = "lt"
	OpGE Op = "gte"
	OpLE Op = "lte"
	OpEQ Op = "eq"
	OpNE Op = "ne"
)

// Evaluate applies the operator to (actual op threshold).
func (o Op) Evaluate(actual, threshold float64) bool {
	switch o {
	case OpGT:
		return actual > threshold
	case OpLT:
		return actual < threshold
	case OpGE:
		return actual >= threshold
	case OpLE:
		return actual <= threshold
	case OpEQ:
		return actual == threshold
	case OpNE:
		return actual != threshold
	default:
		return false
	}
}

// Window is an informational freshness hint attached to a rule.
type Window string

const (
	Window1h  Window = "1h"
	Window6h  Window = "6h"
	Window12h Window = "12h"
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
)

// Channel is where a triggered alert is dispatched.
type Channel string

const (
	ChannelLog     Channel = "log"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// AlertRule is a declarative condition bound to an account.
type AlertRule struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`

	Metric    string `json:"metric"`
	Op        Op     `json:"op"`
	Threshold float64 `json:"threshold"`

	Window        Window         `json:"window,omitempty"`
	Channel       Channel        `json:"channel"`
	ChannelConfig map[string]any `json:"channelConfig,omitempty"`

	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`

	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
}

// TriggeredAlert is an immutable record that a rule fired against a specific Sample.
type TriggeredAlert struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"ruleId"`
	AccountID   string    `json:"accountId"`
	Metric      string    `json:"metric"`
	Op          Op        `json:"op"`
	Threshold   float64   `json:"threshold"`
	ActualValue float64   `json:"actualValue"`
	SampleAt    time.Time `json:"sampleAt"`
	FiredAt     time.Time `json:"firedAt"`
}

// AlertRuleFilter narrows List queries against the rule set.
type AlertRuleFilter struct {
	AccountID string
	Active    *bool
	Channel   Channel
}

// Matches reports whether the rule satisfies the filter.
func (f AlertRuleFilter) Matches(r *AlertRule) bool {
	if f.AccountID != "" && r.AccountID != f.AccountID {
		return false
	}
	if f.Active != nil && r.Active != *f.Active {
		return false
	}
	if f.Channel != "" && r.Channel != f.Channel {
		return false
	}
	return true
}

// TriggeredAlertFilter narrows History queries.
type TriggeredAlertFilter struct {
	AccountID string
	RuleID    string
	Since     *time.Time
}

// Matches reports whether the triggered alert satisfies the filter.
func (f TriggeredAlertFilter) Matches(t *TriggeredAlert) bool {
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if f.RuleID != "" && t.RuleID != f.RuleID {
		return false
	}
	if f.Since != nil && t.FiredAt.Before(*f.Since) {
		return false
	}
	return true
}
