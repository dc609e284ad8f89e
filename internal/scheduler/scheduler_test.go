package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/models"
	"github.com/northlane-labs/social-tracker/internal/registry"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
	next  func(a *models.Account) (*models.Sample, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, a *models.Account) (*models.Sample, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a.ID)
	f.mu.Unlock()

	if f.next != nil {
		return f.next(a)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Sample{AccountID: a.ID, ObservedAt: time.Now(), Followers: 100}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMetrics struct {
	mu      sync.Mutex
	samples []*models.Sample
}

func (m *fakeMetrics) Put(_ context.Context, s *models.Sample) error {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
	return nil
}

type fakeAlerts struct{}

func (fakeAlerts) Evaluate(_ context.Context, _ *models.Sample) ([]*models.TriggeredAlert, error) {
	return nil, nil
}

func newTestScheduler(t *testing.T, fetcher Fetcher) (*Scheduler, *registry.Registry, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)
	reg := registry.New(registry.NewMemoryStore(), bus, fc, nil)
	require.NoError(t, reg.Load(context.Background()))

	cfg := Config{MaxConcurrent: 2, MinInterval: 3 * time.Second}
	s := New(cfg, reg, fetcher, &fakeMetrics{}, fakeAlerts{}, bus, fc, clock.NewFakeRandom(0), nil)
	return s, reg, fc
}

func TestBaseIntervalFallsBackForUnknownPriority(t *testing.T) {
	assert.Equal(t, DefaultCadence[1], baseInterval(DefaultCadence, 0))
	assert.Equal(t, DefaultCadence[5], baseInterval(DefaultCadence, 5))
}

func TestScheduleAccountArmsATimer(t *testing.T) {
	s, reg, _ := newTestScheduler(t, &fakeFetcher{})
	a, err := reg.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	s.ScheduleAccount(a)

	s.mu.Lock()
	_, armed := s.timers[a.ID]
	s.mu.Unlock()
	assert.True(t, armed)
}

func TestEnqueueIsMutuallyExclusiveWithTimer(t *testing.T) {
	s, reg, _ := newTestScheduler(t, &fakeFetcher{})
	a, err := reg.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	s.ScheduleAccount(a)
	s.enqueue(a.ID, a.Priority, false)

	s.mu.Lock()
	_, hasTimer := s.timers[a.ID]
	_, hasQueueEntry := s.queued[a.ID]
	s.mu.Unlock()

	assert.False(t, hasTimer, "enqueue must clear the account's timer entry")
	assert.True(t, hasQueueEntry)
}

func TestPrioritizeOnRunningAccountReturnsRunningStatus(t *testing.T) {
	s, reg, _ := newTestScheduler(t, &fakeFetcher{})
	a, err := reg.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	s.mu.Lock()
	s.running[a.ID] = true
	s.mu.Unlock()

	status, err := s.Prioritize(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
}

func TestPrioritizeInsertsManualEntryAheadOfEarlierQueuedEntry(t *testing.T) {
	s, reg, _ := newTestScheduler(t, &fakeFetcher{})
	ctx := context.Background()

	low, err := reg.Add(ctx, &models.Account{Username: "low", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)
	other, err := reg.Add(ctx, &models.Account{Username: "other", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	s.enqueue(low.ID, low.Priority, false)
	s.enqueue(other.ID, other.Priority, false)

	status, err := s.Prioritize(other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status)

	s.mu.Lock()
	top := s.ready[0]
	s.mu.Unlock()
	assert.Equal(t, other.ID, top.accountID)
	assert.True(t, top.manual)
}

func TestHeapOrdersByPriorityThenQueuedAt(t *testing.T) {
	var q readyQueue
	now := time.Now()
	heap.Init(&q)
	heap.Push(&q, &queueItem{accountID: "low", priority: 1, queuedAt: now})
	heap.Push(&q, &queueItem{accountID: "high", priority: 5, queuedAt: now.Add(time.Second)})
	heap.Push(&q, &queueItem{accountID: "higher-but-later", priority: 5, queuedAt: now.Add(2 * time.Second)})

	first := heap.Pop(&q).(*queueItem)
	second := heap.Pop(&q).(*queueItem)
	third := heap.Pop(&q).(*queueItem)

	assert.Equal(t, "high", first.accountID)
	assert.Equal(t, "higher-but-later", second.accountID)
	assert.Equal(t, "low", third.accountID)
}

func TestEndToEndHighPriorityAccountIsFetchedPromptly(t *testing.T) {
	fetcher := &fakeFetcher{}
	s, reg, fc := newTestScheduler(t, fetcher)
	ctx := context.Background()

	a, err := reg.Add(ctx, &models.Account{ID: "a1", Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 && time.Now().Before(deadline) {
		fc.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, fetcher.callCount(), 1)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := reg.Get(a.ID)
		require.NoError(t, err)
		if got.LastScrapedAt != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("account was never marked scraped")
}

func TestRunOnceReportsNoProxyAvailable(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)
	reg := registry.New(registry.NewMemoryStore(), bus, fc, nil)
	require.NoError(t, reg.Load(context.Background()))

	fetcher := &fakeFetcher{err: engineerr.New(engineerr.NoProxyAvailable, "no proxy")}
	s := New(Config{MaxConcurrent: 1, MinInterval: time.Second, NoProxyRetryDelay: 7 * time.Second},
		reg, fetcher, &fakeMetrics{}, fakeAlerts{}, bus, fc, clock.NewFakeRandom(0), zap.NewNop())

	a, err := reg.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	delay, noProxy, retry := s.runOnce(context.Background(), a.ID, zap.NewNop())
	assert.True(t, noProxy)
	assert.True(t, retry)
	assert.Equal(t, 7*time.Second, delay)
}

func TestRunOnceLeavesNonRetryableFailureUnscheduled(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)
	reg := registry.New(registry.NewMemoryStore(), bus, fc, nil)
	require.NoError(t, reg.Load(context.Background()))

	fetcher := &fakeFetcher{err: engineerr.New(engineerr.NotFound, "account gone")}
	s := New(Config{MaxConcurrent: 1, MinInterval: time.Second},
		reg, fetcher, &fakeMetrics{}, fakeAlerts{}, bus, fc, clock.NewFakeRandom(0), zap.NewNop())

	a, err := reg.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	_, noProxy, retry := s.runOnce(context.Background(), a.ID, zap.NewNop())
	assert.False(t, noProxy)
	assert.False(t, retry)

	got, err := reg.Get(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "account gone", got.LastError.Message)
}
