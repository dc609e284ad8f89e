package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/models"
)

type recordingSink struct {
	calls []*models.TriggeredAlert
}

func (s *recordingSink) Dispatch(_ context.Context, _ *models.AlertRule, t *models.TriggeredAlert) error {
	s.calls = append(s.calls, t)
	return nil
}

func newTestEngine(t *testing.T, logSink Sink) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(store, logSink, nil, nil, fc, nil), store
}

func TestEvaluateFiresExactlyOneTriggerAboveThreshold(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "r1", AccountID: "a1", Metric: "followers", Op: models.OpGT, Threshold: 150, Channel: models.ChannelLog, Active: true}
	require.NoError(t, store.Add(ctx, rule))

	sample := &models.Sample{AccountID: "a1", ObservedAt: time.Now(), Followers: 160}
	triggered, err := e.Evaluate(ctx, sample)
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, 160.0, triggered[0].ActualValue)
	assert.Len(t, sink.calls, 1)
}

func TestEvaluateFiresAgainOnIdenticalSampleNoDedup(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "r1", AccountID: "a1", Metric: "followers", Op: models.OpGT, Threshold: 150, Channel: models.ChannelLog, Active: true}
	require.NoError(t, store.Add(ctx, rule))

	sample := &models.Sample{AccountID: "a1", ObservedAt: time.Now(), Followers: 160}
	_, err := e.Evaluate(ctx, sample)
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, sample)
	require.NoError(t, err)

	assert.Len(t, sink.calls, 2, "a second identical sample fires again, no dedup")
}

func TestEvaluateSkipsInactiveRulesAndUnknownMetrics(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	ctx := context.Background()

	inactive := &models.AlertRule{ID: "r1", AccountID: "a1", Metric: "followers", Op: models.OpGT, Threshold: 1, Channel: models.ChannelLog, Active: false}
	unknown := &models.AlertRule{ID: "r2", AccountID: "a1", Metric: "nonsense", Op: models.OpGT, Threshold: 1, Channel: models.ChannelLog, Active: true}
	require.NoError(t, store.Add(ctx, inactive))
	require.NoError(t, store.Add(ctx, unknown))

	triggered, err := e.Evaluate(ctx, &models.Sample{AccountID: "a1", ObservedAt: time.Now(), Followers: 100})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestOpEqFiresOnlyOnExactMatchNeIsComplement(t *testing.T) {
	assert.True(t, models.OpEQ.Evaluate(150, 150))
	assert.False(t, models.OpEQ.Evaluate(151, 150))
	assert.False(t, models.OpNE.Evaluate(150, 150))
	assert.True(t, models.OpNE.Evaluate(151, 150))
}

func TestEvaluateOrdersTriggersByRuleInsertionOrder(t *testing.T) {
	sink := &recordingSink{}
	e, store := newTestEngine(t, sink)
	ctx := context.Background()

	second := &models.AlertRule{ID: "second", AccountID: "a1", Metric: "followers", Op: models.OpGT, Threshold: 0, Channel: models.ChannelLog, Active: true}
	first := &models.AlertRule{ID: "first", AccountID: "a1", Metric: "following", Op: models.OpGE, Threshold: 0, Channel: models.ChannelLog, Active: true}
	require.NoError(t, store.Add(ctx, second))
	require.NoError(t, store.Add(ctx, first))

	triggered, err := e.Evaluate(ctx, &models.Sample{AccountID: "a1", ObservedAt: time.Now(), Followers: 10, Following: 5})
	require.NoError(t, err)
	require.Len(t, triggered, 2)
	assert.Equal(t, "second", triggered[0].RuleID, "rules evaluate in insertion order, not ID order")
	assert.Equal(t, "first", triggered[1].RuleID)
}
