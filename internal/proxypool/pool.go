// Package proxypool manages the set of upstream proxies the Fetcher routes
// requests through: per-proxy serialization and inter-request spacing, a
// usage-bounded cool-down, and concurrent health checking.
package proxypool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// Config configures Pool behavior. Zero values are replaced by defaults
// matching the reference implementation.
type Config struct {
	MinIntervalMs      int64
	MaxIntervalMs      int64
	MaxUsagePerProxy   int
	CoolingPeriod      time.Duration
	HealthCheckEvery   time.Duration
	HealthCheckURL     string
	HealthCheckTimeout time.Duration
	JitterPct          float64
}

func (c *Config) applyDefaults() {
	if c.MinIntervalMs == 0 {
		c.MinIntervalMs = 3000
	}
	if c.MaxIntervalMs == 0 {
		c.MaxIntervalMs = 5000
	}
	if c.MaxUsagePerProxy == 0 {
		c.MaxUsagePerProxy = 100
	}
	if c.CoolingPeriod == 0 {
		c.CoolingPeriod = 10 * time.Minute
	}
	if c.HealthCheckEvery == 0 {
		c.HealthCheckEvery = 5 * time.Minute
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 10 * time.Second
	}
}

// entry is the pool's internal bookkeeping for one proxy.
type entry struct {
	mu sync.Mutex

	state models.ProxyState

	// inflight serializes requests through this proxy: at most one
	// holder at a time, guaranteeing no overlap and a minimum gap.
	inflight   chan struct{}
	lastUsedAt time.Time

	// staleAfterCooldown is true once a proxy's cool-down period has
	// elapsed but it hasn't been re-checked since entering cool-down.
	// selectEntry clears it by triggering an out-of-band recheck rather
	// than handing the proxy out on a stale health verdict.
	staleAfterCooldown bool
}

// Pool selects, throttles, cools down, and health-checks a set of proxies.
type Pool struct {
	cfg    Config
	logger *zap.Logger
	clock  clock.Clock
	rand   clock.RandomSource

	mu      sync.RWMutex
	entries map[string]*entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Pool. cfg is copied and defaulted.
func New(cfg Config, c clock.Clock, r clock.RandomSource, logger *zap.Logger) *Pool {
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
	return &Pool{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "proxy_pool")),
		clock:   c,
		rand:    r,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
}

// LoadFile parses a ProxyFile from disk and adds every entry to the pool.
func (p *Pool) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "read proxy file", err)
	}
	var pf models.ProxyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return engineerr.Wrap(engineerr.Parse, "parse proxy file", err)
	}
	for _, e := range pf.Proxies {
		proto := models.ProxyProtocol(e.Protocol)
		if proto == "" {
			proto = models.ProxyHTTP
		}
		p.AddProxy(models.ProxyState{
			Host:     e.Host,
			Port:     e.Port,
			Protocol: proto,
			Auth:     e.Auth,
		})
	}
	return nil
}

// AddProxy registers a new proxy, unhealthy until its first health check.
func (p *Pool) AddProxy(state models.ProxyState) string {
	if state.ID == "" {
		state.ID = fmt.Sprintf("%s:%d", state.Host, state.Port)
		if state.Auth != nil && state.Auth.Username != "" {
			state.ID += ":" + state.Auth.Username
		}
	}
	state.Healthy = false

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[state.ID] = &entry{
		state:    state,
		inflight: make(chan struct{}, 1),
	}
	return state.ID
}

// RemoveProxy drops a proxy from the pool entirely.
func (p *Pool) RemoveProxy(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// Status is a point-in-time snapshot of the pool for the control plane.
type Status struct {
	Total     int
	Available int
	Cooling   int
}

// Status reports the pool's current shape.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var s Status
	s.Total = len(p.entries)
	now := p.clock.Now()
	for _, e := range p.entries {
		e.mu.Lock()
		cooling := e.state.CoolingUntil != nil && now.Before(*e.state.CoolingUntil)
		if cooling {
			s.Cooling++
		} else if e.state.Healthy {
			s.Available++
		}
		e.mu.Unlock()
	}
	return s
}

// WithProxy runs fn against a proxy selected per the pool's policy,
// serialized through that proxy's single in-flight slot with a jittered
// inter-request delay. It returns engineerr.ErrNoProxyAvailable if no
// proxy is eligible even after an emergency health check.
func (p *Pool) WithProxy(ctx context.Context, fn func(ctx context.Context, proxy models.ProxyState) error) error {
	e := p.selectEntry()
	if e == nil {
		p.performHealthChecks(ctx)
		e = p.selectEntry()
		if e == nil {
			return engineerr.New(engineerr.NoProxyAvailable, "no healthy, non-cooling proxy available")
		}
	}

	select {
	case e.inflight <- struct{}{}:
	case <-ctx.Done():
		return engineerr.Wrap(engineerr.Cancelled, "waiting for proxy slot", ctx.Err())
	}
	defer func() { <-e.inflight }()

	delay := p.interRequestDelay()
	select {
	case <-p.clock.After(delay):
	case <-ctx.Done():
		return engineerr.Wrap(engineerr.Cancelled, "waiting for throttle delay", ctx.Err())
	}

	e.mu.Lock()
	snapshot := e.state
	e.mu.Unlock()

	err := fn(ctx, snapshot)

	e.mu.Lock()
	e.state.UsageCount++
	e.lastUsedAt = p.clock.Now()
	e.mu.Unlock()
	p.recordOutcome(e, err)
	p.maybeCoolDown(e)

	return err
}

func (p *Pool) interRequestDelay() time.Duration {
	min := time.Duration(p.cfg.MinIntervalMs) * time.Millisecond
	max := time.Duration(p.cfg.MaxIntervalMs) * time.Millisecond
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(p.rand.Float64()*float64(span))
}

// selectEntry picks the healthy, non-cooling proxy with the lowest
// usageCount, breaking ties by oldest lastUsedAt. A proxy whose cool-down
// just elapsed is held back from selection until an out-of-band recheck
// confirms it's still healthy, rather than trusting a stale verdict.
func (p *Pool) selectEntry() *entry {
	p.mu.RLock()

	now := p.clock.Now()
	var best *entry
	var toRecheck []string
	for id, e := range p.entries {
		e.mu.Lock()
		coolingUntil := e.state.CoolingUntil
		cooling := coolingUntil != nil && now.Before(*coolingUntil)
		needsRecheck := coolingUntil != nil && !cooling && !e.staleAfterCooldown
		if needsRecheck {
			e.staleAfterCooldown = true
		}
		eligible := e.state.Healthy && !cooling && !e.staleAfterCooldown
		usage := e.state.UsageCount
		lastUsed := e.lastUsedAt
		e.mu.Unlock()

		if needsRecheck {
			toRecheck = append(toRecheck, id)
		}
		if !eligible {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		best.mu.Lock()
		bestUsage := best.state.UsageCount
		bestLastUsed := best.lastUsedAt
		best.mu.Unlock()

		if usage < bestUsage || (usage == bestUsage && lastUsed.Before(bestLastUsed)) {
			best = e
		}
	}
	p.mu.RUnlock()

	for _, id := range toRecheck {
		p.triggerRecheckNow(id)
	}
	return best
}

// triggerRecheckNow runs a health check for id in the background and
// clears its staleAfterCooldown gate once the check completes, whatever
// the outcome — a failed recheck leaves the proxy unhealthy (and so
// still ineligible), a passing one clears CoolingUntil via checkOne.
func (p *Pool) triggerRecheckNow(id string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.checkOne(context.Background(), id)
		p.mu.RLock()
		e, ok := p.entries[id]
		p.mu.RUnlock()
		if !ok {
			return
		}
		e.mu.Lock()
		e.staleAfterCooldown = false
		e.mu.Unlock()
	}()
}

// networkErrorSignals are substrings that classify a failure as a proxy
// health signal rather than an application-level error.
var networkErrorSignals = []string{
	"connection reset",
	"connection refused",
	"i/o timeout",
	"timeout",
	"host unreachable",
	"407",
	"502",
	"503",
	"504",
	"tunneling socket",
	"proxy authentication required",
}

// IsProxySignal reports whether err's message matches a known network or
// proxy-layer failure signature.
func IsProxySignal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range networkErrorSignals {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func (p *Pool) recordOutcome(e *entry, err error) {
	if err == nil {
		return
	}
	if !IsProxySignal(err) {
		return
	}

	e.mu.Lock()
	e.state.Healthy = false
	e.state.LastError = err.Error()
	e.state.LastCheckAt = p.clock.Now()
	e.mu.Unlock()

	p.logger.Warn("proxy marked unhealthy from request failure",
		zap.String("proxyId", e.state.ID), zap.Error(err))

	p.scheduleRecheck(e.state.ID, time.Minute)
}

func (p *Pool) maybeCoolDown(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.UsageCount >= p.cfg.MaxUsagePerProxy && e.state.CoolingUntil == nil {
		until := p.clock.Now().Add(p.cfg.CoolingPeriod)
		e.state.CoolingUntil = &until
		e.staleAfterCooldown = false
		p.logger.Info("proxy entering cool-down",
			zap.String("proxyId", e.state.ID), zap.Time("until", until))
	}
}

// scheduleRecheck performs an out-of-band health check after delay,
// mirroring the reference pool's immediate-removal-then-recheck behavior
// for a proxy that just failed a live request.
func (p *Pool) scheduleRecheck(id string, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-p.clock.After(delay):
		case <-p.stopCh:
			return
		}
		p.checkOne(context.Background(), id)
	}()
}

// StartHealthMonitor begins the periodic concurrent health-check loop.
// It runs until Stop is called.
func (p *Pool) StartHealthMonitor() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := p.clock.NewTimer(p.cfg.HealthCheckEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HealthCheckTimeout)
				p.performHealthChecks(ctx)
				cancel()
				ticker.Reset(p.cfg.HealthCheckEvery)
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop halts the health monitor and any pending recheck goroutines.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) performHealthChecks(ctx context.Context) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p.checkOne(ctx, id)
		}(id)
	}
	wg.Wait()
}

func (p *Pool) checkOne(ctx context.Context, id string) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	cooling := e.state.CoolingUntil != nil && !p.clock.Now().After(*e.state.CoolingUntil)
	e.mu.Unlock()
	if cooling {
		return
	}

	start := p.clock.Now()
	healthy, respErr := p.probe(ctx, e)
	elapsed := p.clock.Now().Sub(start)

	e.mu.Lock()
	e.state.Healthy = healthy
	e.state.LastCheckAt = p.clock.Now()
	e.state.ResponseTimeMs = elapsed.Milliseconds()
	if respErr != nil {
		e.state.LastError = respErr.Error()
	} else {
		e.state.LastError = ""
	}
	if e.state.CoolingUntil != nil && p.clock.Now().After(*e.state.CoolingUntil) {
		e.state.CoolingUntil = nil
	}
	e.mu.Unlock()

	if !healthy {
		p.logger.Warn("health check failed", zap.String("proxyId", id), zap.Error(respErr))
	}
}

func (p *Pool) probe(ctx context.Context, e *entry) (bool, error) {
	if p.cfg.HealthCheckURL == "" {
		return true, nil
	}

	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	client, err := p.clientFor(state)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.HealthCheckURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return true, nil
}

// clientFor builds an *http.Client that tunnels through state, so a health
// check exercises the proxy itself rather than a direct connection. HTTP and
// HTTPS upstreams use the transport's built-in CONNECT/forward-proxy support;
// SOCKS5 upstreams dial through golang.org/x/net/proxy.
func (p *Pool) clientFor(state models.ProxyState) (*http.Client, error) {
	addr := fmt.Sprintf("%s:%d", state.Host, state.Port)

	switch state.Protocol {
	case models.ProxySOCKS5:
		var auth *proxy.Auth
		if state.Auth != nil {
			auth = &proxy.Auth{User: state.Auth.Username, Password: state.Auth.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.Transport, "build socks5 dialer", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, engineerr.New(engineerr.Internal, "socks5 dialer does not support context dialing")
		}
		return &http.Client{
			Timeout: p.cfg.HealthCheckTimeout,
			Transport: &http.Transport{
				DialContext: contextDialer.DialContext,
			},
		}, nil
	default:
		proxyURL := &url.URL{Scheme: string(state.Protocol), Host: addr}
		if state.Auth != nil {
			proxyURL.User = url.UserPassword(state.Auth.Username, state.Auth.Password)
		}
		return &http.Client{
			Timeout:   p.cfg.HealthCheckTimeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}, nil
	}
}

// Snapshot returns every proxy's current state, sorted by ID, for the
// control plane's status endpoint.
func (p *Pool) Snapshot() []models.ProxyState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.ProxyState, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		out = append(out, e.state)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
