// Package scheduler is the Priority Scheduler: it arms one timer per active
// account on a priority-derived cadence, collects fired accounts into a
// ready queue, and dispatches a bounded worker pool against the Fetcher.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// Fetcher produces a Sample for an account or a classified error.
type Fetcher interface {
	Fetch(ctx context.Context, account *models.Account) (*models.Sample, error)
}

// MetricsSink appends a Sample to the Metrics Store.
type MetricsSink interface {
	Put(ctx context.Context, sample *models.Sample) error
}

// AlertEvaluator runs alert rules against a freshly-produced Sample.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, sample *models.Sample) ([]*models.TriggeredAlert, error)
}

// Registry is the subset of the Account Registry the scheduler depends on.
type Registry interface {
	Get(id string) (*models.Account, error)
	List(filter models.AccountFilter) []*models.Account
	MarkScraped(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time, message string) error
}

// Config configures Scheduler behavior.
type Config struct {
	MaxConcurrent     int
	Cadence           map[models.Priority]time.Duration
	JitterPct         float64
	MinInterval       time.Duration
	NoProxyRetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.Cadence == nil {
		c.Cadence = DefaultCadence
	}
	if c.JitterPct == 0 {
		c.JitterPct = 0.075
	}
	if c.MinInterval == 0 {
		c.MinInterval = 3 * time.Second
	}
	if c.NoProxyRetryDelay == 0 {
		c.NoProxyRetryDelay = 5 * time.Second
	}
}

type timerEntry struct {
	timer clock.Timer
	stop  chan struct{}
}

// Scheduler is the Priority Scheduler.
type Scheduler struct {
	cfg      Config
	registry Registry
	fetcher  Fetcher
	metrics  MetricsSink
	alerts   AlertEvaluator
	bus      eventbus.Bus
	clock    clock.Clock
	rand     clock.RandomSource
	logger   *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	timers  map[string]*timerEntry
	queued  map[string]*queueItem
	running map[string]bool
	ready   readyQueue

	paused  atomic.Bool
	stopped atomic.Bool
	wg      sync.WaitGroup
	unsub   func()
	cancel  context.CancelFunc
}

// New constructs a Scheduler. Start begins per-account scheduling.
func New(cfg Config, reg Registry, fetcher Fetcher, metrics MetricsSink, alerts AlertEvaluator, bus eventbus.Bus, c clock.Clock, r clock.RandomSource, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real
	}
	if r == nil {
		r = clock.NewRealRandom()
	}
	s := &Scheduler{
		cfg:      cfg,
		registry: reg,
		fetcher:  fetcher,
		metrics:  metrics,
		alerts:   alerts,
		bus:      bus,
		clock:    c,
		rand:     r,
		logger:   logger.With(zap.String("component", "priority_scheduler")),
		timers:   make(map[string]*timerEntry),
		queued:   make(map[string]*queueItem),
		running:  make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start arms timers for every active account, subscribes to registry
// change events, and launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.ScheduleAll()

	if s.bus != nil {
		s.unsub = s.bus.Subscribe(func(ctx context.Context, evt models.AccountChangeEvent) {
			s.handleChangeEvent(evt)
		})
	}

	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	return nil
}

// Stop cancels every armed timer, drains the ready queue, and waits for
// in-flight workers to observe cancellation at their next suspension point.
func (s *Scheduler) Stop() {
	if s.unsub != nil {
		s.unsub()
	}

	s.mu.Lock()
	for id, e := range s.timers {
		e.timer.Stop()
		close(e.stop)
		delete(s.timers, id)
	}
	s.ready = nil
	s.queued = make(map[string]*queueItem)
	s.stopped.Store(true)
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Pause stops new dispatches without disturbing in-flight work.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume allows new dispatches again.
func (s *Scheduler) Resume() { s.paused.Store(false); s.cond.Broadcast() }

// ScheduleAll arms a timer for every currently active account.
func (s *Scheduler) ScheduleAll() {
	active := true
	for _, a := range s.registry.List(models.AccountFilter{Active: &active}) {
		s.ScheduleAccount(a)
	}
}

// ScheduleAccount computes and arms the account's next timer.
func (s *Scheduler) ScheduleAccount(a *models.Account) {
	s.cancelTimerLocked(a.ID)

	base := baseInterval(s.cfg.Cadence, a.Priority)
	interval := clock.Jitter(s.rand, base, s.cfg.JitterPct)

	var delay time.Duration
	if a.LastScrapedAt != nil {
		elapsed := s.clock.Now().Sub(*a.LastScrapedAt)
		delay = interval - elapsed
		if delay < 0 {
			delay = 0
		}
	} else {
		delay = time.Duration(s.rand.Float64() * float64(10*time.Second))
	}

	floor := time.Duration(s.rand.Float64() * float64(s.cfg.MinInterval))
	if delay < floor {
		delay = floor
	}

	s.armTimer(a.ID, a.Priority, delay, false)
}

func (s *Scheduler) cancelTimerLocked(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerUnsafe(accountID)
}

func (s *Scheduler) cancelTimerUnsafe(accountID string) {
	if e, ok := s.timers[accountID]; ok {
		e.timer.Stop()
		close(e.stop)
		delete(s.timers, accountID)
	}
}

func (s *Scheduler) armTimer(accountID string, priority models.Priority, delay time.Duration, manual bool) {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	s.cancelTimerUnsafe(accountID)
	timer := s.clock.NewTimer(delay)
	stopCh := make(chan struct{})
	s.timers[accountID] = &timerEntry{timer: timer, stop: stopCh}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-timer.C():
			s.enqueue(accountID, priority, manual)
		case <-stopCh:
		}
	}()
}

func (s *Scheduler) enqueue(accountID string, priority models.Priority, manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return
	}
	delete(s.timers, accountID)
	if s.running[accountID] {
		return
	}
	if item, ok := s.queued[accountID]; ok {
		if manual {
			item.manual = true
			heap.Fix(&s.ready, item.index)
		}
		s.cond.Broadcast()
		return
	}

	item := &queueItem{accountID: accountID, priority: priority, queuedAt: s.clock.Now(), manual: manual}
	heap.Push(&s.ready, item)
	s.queued[accountID] = item
	s.cond.Broadcast()
}

// RunStatus describes whether a manual prioritization request found the
// account already running.
type RunStatus string

const (
	StatusQueued  RunStatus = "queued"
	StatusRunning RunStatus = "running"
)

// Prioritize cancels the account's timer, drops any queue entry, and
// inserts it at the head of the ready queue. If the account is currently
// running, no duplicate work is scheduled.
func (s *Scheduler) Prioritize(accountID string) (RunStatus, error) {
	a, err := s.registry.Get(accountID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.running[accountID] {
		s.mu.Unlock()
		return StatusRunning, nil
	}
	s.cancelTimerUnsafe(accountID)
	s.mu.Unlock()

	s.enqueue(accountID, a.Priority, true)
	return StatusQueued, nil
}

func (s *Scheduler) handleChangeEvent(evt models.AccountChangeEvent) {
	switch evt.Kind {
	case models.AccountDeleted, models.AccountDeactivated:
		s.cancelTimerLocked(evt.AccountID)
		s.mu.Lock()
		if item, ok := s.queued[evt.AccountID]; ok && item.index >= 0 {
			heap.Remove(&s.ready, item.index)
			delete(s.queued, evt.AccountID)
		}
		s.mu.Unlock()
	case models.AccountCreated, models.AccountActivated, models.AccountUpdated:
		if evt.Account != nil && evt.Account.Active {
			s.mu.Lock()
			_, isQueued := s.queued[evt.AccountID]
			busy := isQueued || s.running[evt.AccountID]
			s.mu.Unlock()
			if busy {
				// The worker re-arms the account once its queued or running pass completes.
				return
			}
			s.ScheduleAccount(evt.Account)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With(zap.Int("worker", id))

	for {
		s.mu.Lock()
		for (len(s.ready) == 0 || s.paused.Load()) && !s.stopped.Load() {
			s.cond.Wait()
		}
		if s.stopped.Load() && len(s.ready) == 0 {
			s.mu.Unlock()
			return
		}
		if len(s.ready) == 0 {
			s.mu.Unlock()
			continue
		}
		item := heap.Pop(&s.ready).(*queueItem)
		delete(s.queued, item.accountID)
		s.running[item.accountID] = true
		s.mu.Unlock()

		nextDelay, noProxy, retry := s.runOnce(ctx, item.accountID, logger)

		s.mu.Lock()
		delete(s.running, item.accountID)
		s.mu.Unlock()

		if s.stopped.Load() || !retry {
			continue
		}

		a, err := s.registry.Get(item.accountID)
		if err != nil || !a.Active {
			continue
		}
		if noProxy {
			s.armTimer(a.ID, a.Priority, nextDelay, false)
		} else {
			s.ScheduleAccount(a)
		}
	}
}

// runOnce fetches one account and updates downstream state. It returns a
// delay override, true when the failure was NoProxyAvailable (so the caller
// can requeue sooner than a normal failure delay), and whether the account
// should be rescheduled at all — a non-retryable failure leaves it dormant
// until a registry change or manual Prioritize picks it back up.
func (s *Scheduler) runOnce(ctx context.Context, accountID string, logger *zap.Logger) (time.Duration, bool, bool) {
	a, err := s.registry.Get(accountID)
	if err != nil {
		return 0, false, true
	}

	sample, err := s.fetcher.Fetch(ctx, a)
	now := s.clock.Now()

	if err != nil {
		kind := engineerr.KindOf(err)
		if kind == engineerr.Cancelled {
			return 0, false, true
		}
		if kind == engineerr.NoProxyAvailable {
			logger.Warn("no proxy available, requeueing shortly", zap.String("accountId", accountID))
			return s.cfg.NoProxyRetryDelay, true, true
		}

		logger.Warn("fetch failed", zap.String("accountId", accountID), zap.Error(err))
		if merr := s.registry.MarkFailed(ctx, accountID, now, err.Error()); merr != nil {
			logger.Error("failed to record fetch failure", zap.Error(merr))
		}
		if !engineerr.Retryable(err) {
			logger.Warn("non-retryable failure, leaving account unscheduled", zap.String("accountId", accountID))
			return 0, false, false
		}
		return 0, false, true
	}

	if err := s.metrics.Put(ctx, sample); err != nil {
		logger.Error("failed to persist sample", zap.String("accountId", accountID), zap.Error(err))
	}
	if _, err := s.alerts.Evaluate(ctx, sample); err != nil {
		logger.Error("failed to evaluate alerts", zap.String("accountId", accountID), zap.Error(err))
	}
	if err := s.registry.MarkScraped(ctx, accountID, sample.ObservedAt); err != nil {
		logger.Error("failed to record successful scrape", zap.Error(err))
	}

	return 0, false, true
}

// Status is a point-in-time snapshot for the control plane.
type Status struct {
	QueueSize int
	Running   []string
	Scheduled int
}

// Status reports the scheduler's current shape.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := make([]string, 0, len(s.running))
	for id := range s.running {
		running = append(running, id)
	}
	return Status{
		QueueSize: len(s.ready),
		Running:   running,
		Scheduled: len(s.timers),
	}
}
