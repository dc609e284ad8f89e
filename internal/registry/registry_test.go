package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, *eventbus.Local) {
	t.Helper()
	bus := eventbus.NewLocal(nil)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(NewMemoryStore(), bus, fc, nil)
	require.NoError(t, r.Load(context.Background()))
	return r, bus
}

func TestAddRejectsDuplicateUsername(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, &models.Account{Username: "x", Priority: models.PriorityMax})
	require.NoError(t, err)

	_, err = r.Add(ctx, &models.Account{Username: "x", Priority: models.PriorityMin})
	require.Error(t, err)
	assert.Equal(t, engineerr.Conflict, engineerr.KindOf(err))
}

func TestAddRejectsDuplicateUsernameCaseInsensitive(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, &models.Account{Username: "Alice", Priority: models.PriorityMax})
	require.NoError(t, err)

	_, err = r.Add(ctx, &models.Account{Username: "alice", Priority: models.PriorityMin})
	require.Error(t, err)
	assert.Equal(t, engineerr.Conflict, engineerr.KindOf(err))

	found, err := r.GetByUsername("ALICE")
	require.NoError(t, err)
	assert.Equal(t, "Alice", found.Username)
}

func TestAddRejectsInvalidPriority(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Add(context.Background(), &models.Account{Username: "x", Priority: 9})
	require.Error(t, err)
	assert.Equal(t, engineerr.Validation, engineerr.KindOf(err))
}

func TestAddPublishesCreatedEvent(t *testing.T) {
	r, bus := newTestRegistry(t)

	var mu sync.Mutex
	var got models.AccountChangeEvent
	bus.Subscribe(func(_ context.Context, evt models.AccountChangeEvent) {
		mu.Lock()
		got = evt
		mu.Unlock()
	})

	a, err := r.Add(context.Background(), &models.Account{Username: "x", Priority: models.PriorityMax})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.AccountCreated, got.Kind)
	assert.Equal(t, a.ID, got.AccountID)
}

func TestUpdateEmitsActivatedAndDeactivated(t *testing.T) {
	r, bus := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Add(ctx, &models.Account{Username: "x", Priority: models.PriorityMax, Active: false})
	require.NoError(t, err)

	var mu sync.Mutex
	var kinds []models.AccountChangeKind
	bus.Subscribe(func(_ context.Context, evt models.AccountChangeEvent) {
		mu.Lock()
		kinds = append(kinds, evt.Kind)
		mu.Unlock()
	})

	a.Active = true
	_, err = r.Update(ctx, a)
	require.NoError(t, err)

	a.Active = false
	_, err = r.Update(ctx, a)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, kinds, 2)
	assert.Equal(t, models.AccountActivated, kinds[0])
	assert.Equal(t, models.AccountDeactivated, kinds[1])
}

func TestDeleteUnknownAccountIsNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, engineerr.NotFound, engineerr.KindOf(err))
}

func TestNextToScrapePrefersHigherPriorityThenOldestScrape(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	low, err := r.Add(ctx, &models.Account{Username: "low", Priority: models.PriorityMin, Active: true})
	require.NoError(t, err)
	high, err := r.Add(ctx, &models.Account{Username: "high", Priority: models.PriorityMax, Active: true})
	require.NoError(t, err)

	next, ok := r.NextToScrape()
	require.True(t, ok)
	assert.Equal(t, high.ID, next.ID)

	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.MarkScraped(ctx, high.ID, time.Now()))
	require.NoError(t, r.MarkScraped(ctx, low.ID, older))

	high.Priority = models.PriorityMin
	_, err = r.Update(ctx, high)
	require.NoError(t, err)

	next, ok = r.NextToScrape()
	require.True(t, ok)
	assert.Equal(t, low.ID, next.ID, "with priorities tied, the account scraped longest ago comes first")
}

func TestListFiltersByActiveAndTag(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, &models.Account{Username: "a", Priority: models.PriorityMax, Active: true, Tags: []string{"vip"}})
	require.NoError(t, err)
	_, err = r.Add(ctx, &models.Account{Username: "b", Priority: models.PriorityMax, Active: false})
	require.NoError(t, err)

	active := true
	results := r.List(models.AccountFilter{Active: &active})
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Username)

	tagged := r.List(models.AccountFilter{Tag: "vip"})
	require.Len(t, tagged, 1)
	assert.Equal(t, "a", tagged[0].Username)
}

func TestMarkFailedRecordsLastError(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Add(ctx, &models.Account{Username: "x", Priority: models.PriorityMax})
	require.NoError(t, err)

	require.NoError(t, r.MarkFailed(ctx, a.ID, time.Now(), "navigation timeout"))

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "navigation timeout", got.LastError.Message)
}
