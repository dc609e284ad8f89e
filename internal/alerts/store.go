// Package alerts implements the rule-based Alert Engine: evaluating
// freshly-ingested Samples against stored rules, recording trigger
// history, and dispatching to log/email/webhook sinks.
package alerts

import (
	"context"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// Store persists alert rule definitions and the history of fired triggers.
type Store interface {
	Add(ctx context.Context, rule *models.AlertRule) error
	Update(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, id string) error
	Get(id string) (*models.AlertRule, bool)
	List(filter models.AlertRuleFilter) []*models.AlertRule
	RecordTrigger(ctx context.Context, t *models.TriggeredAlert) error
	History(filter models.TriggeredAlertFilter, limit int) []*models.TriggeredAlert
}
