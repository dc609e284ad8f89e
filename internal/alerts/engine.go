package alerts

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// Engine evaluates rules against samples and dispatches triggers to their
// channel sinks.
type Engine struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger

	sinks map[models.Channel]Sink
}

// New builds an Engine with its channel sinks pre-wired.
func New(store Store, log, email, webhook Sink, c clock.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		clock:  c,
		logger: logger,
		sinks: map[models.Channel]Sink{
			models.ChannelLog:     log,
			models.ChannelEmail:   email,
			models.ChannelWebhook: webhook,
		},
	}
}

// Evaluate runs every active rule bound to sample.AccountID against it, in
// rule insertion order, returning every TriggeredAlert fired (no dedup —
// an explicitly open question the source leaves unresolved).
func (e *Engine) Evaluate(ctx context.Context, sample *models.Sample) ([]*models.TriggeredAlert, error) {
	rules := e.store.List(models.AlertRuleFilter{AccountID: sample.AccountID})

	var triggered []*models.TriggeredAlert
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		actual, ok := sample.Field(rule.Metric)
		if !ok {
			continue
		}
		if !rule.Op.Evaluate(actual, rule.Threshold) {
			continue
		}

		t := &models.TriggeredAlert{
			ID:          uuid.NewString(),
			RuleID:      rule.ID,
			AccountID:   sample.AccountID,
			Metric:      rule.Metric,
			Op:          rule.Op,
			Threshold:   rule.Threshold,
			ActualValue: actual,
			SampleAt:    sample.ObservedAt,
			FiredAt:     e.clock.Now(),
		}
		if err := e.store.RecordTrigger(ctx, t); err != nil {
			return triggered, err
		}
		triggered = append(triggered, t)
		e.dispatch(ctx, rule, t)
	}
	return triggered, nil
}

func (e *Engine) dispatch(ctx context.Context, rule *models.AlertRule, t *models.TriggeredAlert) {
	sink, ok := e.sinks[rule.Channel]
	if !ok || sink == nil {
		e.logger.Warn("alert channel has no sink configured", zap.String("channel", string(rule.Channel)))
		return
	}
	if err := sink.Dispatch(ctx, rule, t); err != nil {
		e.logger.Warn("alert sink dispatch failed", zap.String("ruleId", rule.ID), zap.Error(err))
	}
}

// Add validates and persists a new rule.
func (e *Engine) Add(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
	if rule.AccountID == "" || rule.Metric == "" {
		return nil, engineerr.New(engineerr.Validation, "accountId and metric are required")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := e.store.Add(ctx, rule); err != nil {
		return nil, err
	}
	clone := *rule
	return &clone, nil
}

func (e *Engine) Update(ctx context.Context, rule *models.AlertRule) error {
	return e.store.Update(ctx, rule)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

func (e *Engine) Get(id string) (*models.AlertRule, bool) {
	return e.store.Get(id)
}

func (e *Engine) List(filter models.AlertRuleFilter) []*models.AlertRule {
	return e.store.List(filter)
}

func (e *Engine) History(filter models.TriggeredAlertFilter, limit int) []*models.TriggeredAlert {
	return e.store.History(filter, limit)
}
