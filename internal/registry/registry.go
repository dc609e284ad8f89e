// Package registry is the Account Registry: the durable, indexed set of
// tracked accounts, with change notification for the Priority Scheduler.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// usernameKey normalizes a username for uniqueness and lookup: remote
// handles are case-insensitive, so "Alice" and "alice" are the same account.
func usernameKey(username string) string {
	return strings.ToLower(username)
}

// Registry is the in-memory, store-backed index of tracked accounts.
type Registry struct {
	store  Store
	bus    eventbus.Bus
	clock  clock.Clock
	logger *zap.Logger

	mu         sync.RWMutex
	accounts   map[string]*models.Account
	byUsername map[string]string
}

// New constructs a Registry. Load must be called before use.
func New(store Store, bus eventbus.Bus, c clock.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real
	}
	return &Registry{
		store:      store,
		bus:        bus,
		clock:      c,
		logger:     logger.With(zap.String("component", "account_registry")),
		accounts:   make(map[string]*models.Account),
		byUsername: make(map[string]string),
	}
}

// Load populates the in-memory index from the durable store.
func (r *Registry) Load(ctx context.Context) error {
	accounts, err := r.store.LoadAll(ctx)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "load accounts", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[string]*models.Account, len(accounts))
	r.byUsername = make(map[string]string, len(accounts))
	for _, a := range accounts {
		r.accounts[a.ID] = a
		r.byUsername[usernameKey(a.Username)] = a.ID
	}
	return nil
}

// Add validates and persists a new account, publishing a "created" event.
func (r *Registry) Add(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.Username == "" {
		return nil, engineerr.New(engineerr.Validation, "username is required")
	}
	if !a.Priority.Valid() {
		return nil, engineerr.New(engineerr.Validation, "priority must be between 1 and 5")
	}

	r.mu.Lock()
	if _, exists := r.byUsername[usernameKey(a.Username)]; exists {
		r.mu.Unlock()
		return nil, engineerr.New(engineerr.Conflict, "username already registered")
	}
	r.mu.Unlock()

	now := r.clock.Now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := r.store.Upsert(ctx, a); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "persist account", err)
	}

	r.mu.Lock()
	r.accounts[a.ID] = a.Clone()
	r.byUsername[usernameKey(a.Username)] = a.ID
	r.mu.Unlock()

	r.publish(ctx, a.ID, models.AccountCreated, a)
	return a.Clone(), nil
}

// Update replaces the mutable fields of an existing account.
func (r *Registry) Update(ctx context.Context, updated *models.Account) (*models.Account, error) {
	r.mu.Lock()
	existing, ok := r.accounts[updated.ID]
	if !ok {
		r.mu.Unlock()
		return nil, engineerr.New(engineerr.NotFound, "account not found")
	}

	wasActive := existing.Active
	merged := existing.Clone()
	merged.Username = updated.Username
	merged.DisplayName = updated.DisplayName
	merged.ProfileURL = updated.ProfileURL
	merged.Priority = updated.Priority
	merged.Active = updated.Active
	merged.Tags = updated.Tags
	merged.UpdatedAt = r.clock.Now()

	if usernameKey(merged.Username) != usernameKey(existing.Username) {
		if _, exists := r.byUsername[usernameKey(merged.Username)]; exists {
			r.mu.Unlock()
			return nil, engineerr.New(engineerr.Conflict, "username already registered")
		}
		delete(r.byUsername, usernameKey(existing.Username))
		r.byUsername[usernameKey(merged.Username)] = merged.ID
	}
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, merged); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "persist account", err)
	}

	r.mu.Lock()
	r.accounts[merged.ID] = merged.Clone()
	r.mu.Unlock()

	kind := models.AccountUpdated
	if !wasActive && merged.Active {
		kind = models.AccountActivated
	} else if wasActive && !merged.Active {
		kind = models.AccountDeactivated
	}
	r.publish(ctx, merged.ID, kind, merged)
	return merged.Clone(), nil
}

// Delete removes an account from the registry and the durable store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	existing, ok := r.accounts[id]
	if !ok {
		r.mu.Unlock()
		return engineerr.New(engineerr.NotFound, "account not found")
	}
	delete(r.accounts, id)
	delete(r.byUsername, usernameKey(existing.Username))
	r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		return engineerr.Wrap(engineerr.Internal, "delete account", err)
	}

	r.publish(ctx, id, models.AccountDeleted, nil)
	return nil
}

// Get returns a clone of the account with the given ID.
func (r *Registry) Get(id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "account not found")
	}
	return a.Clone(), nil
}

// GetByUsername returns a clone of the account with the given username.
func (r *Registry) GetByUsername(username string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[usernameKey(username)]
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "account not found")
	}
	return r.accounts[id].Clone(), nil
}

// List returns every account matching filter, ordered by ID for stability.
func (r *Registry) List(filter models.AccountFilter) []*models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextToScrape returns the active account maximizing scheduling urgency:
// higher priority first, then lastScrapedAt ascending with nulls first.
// It is consulted only for ad-hoc queries; the scheduler's steady state
// is driven by per-account timers.
func (r *Registry) NextToScrape() (*models.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.Account
	for _, a := range r.accounts {
		if !a.Active {
			continue
		}
		if best == nil || moreUrgent(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

func moreUrgent(a, b *models.Account) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.LastScrapedAt == nil {
		return b.LastScrapedAt != nil
	}
	if b.LastScrapedAt == nil {
		return false
	}
	return a.LastScrapedAt.Before(*b.LastScrapedAt)
}

// MarkScraped records a successful fetch's completion time and clears
// any previous error.
func (r *Registry) MarkScraped(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	a, ok := r.accounts[id]
	if !ok {
		r.mu.Unlock()
		return engineerr.New(engineerr.NotFound, "account not found")
	}
	updated := a.Clone()
	updated.LastScrapedAt = &at
	updated.LastError = nil
	updated.UpdatedAt = r.clock.Now()
	r.accounts[id] = updated
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, updated); err != nil {
		return engineerr.Wrap(engineerr.Internal, "persist account", err)
	}
	return nil
}

// MarkFailed records a fetch failure's message against the account.
func (r *Registry) MarkFailed(ctx context.Context, id string, at time.Time, message string) error {
	r.mu.Lock()
	a, ok := r.accounts[id]
	if !ok {
		r.mu.Unlock()
		return engineerr.New(engineerr.NotFound, "account not found")
	}
	updated := a.Clone()
	updated.LastError = &models.ScrapeError{Message: message, At: at}
	updated.UpdatedAt = r.clock.Now()
	r.accounts[id] = updated
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, updated); err != nil {
		return engineerr.Wrap(engineerr.Internal, "persist account", err)
	}
	return nil
}

func (r *Registry) publish(ctx context.Context, accountID string, kind models.AccountChangeKind, a *models.Account) {
	if r.bus == nil {
		return
	}
	var clone *models.Account
	if a != nil {
		clone = a.Clone()
	}
	r.bus.Publish(ctx, models.AccountChangeEvent{AccountID: accountID, Kind: kind, Account: clone})
}
