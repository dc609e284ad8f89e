package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/models"
)

func TestLocalPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewLocal(nil)

	var mu sync.Mutex
	var gotA, gotB models.AccountChangeEvent

	b.Subscribe(func(_ context.Context, evt models.AccountChangeEvent) {
		mu.Lock()
		gotA = evt
		mu.Unlock()
	})
	b.Subscribe(func(_ context.Context, evt models.AccountChangeEvent) {
		mu.Lock()
		gotB = evt
		mu.Unlock()
	})

	evt := models.AccountChangeEvent{AccountID: "acct-1", Kind: models.AccountCreated}
	b.Publish(context.Background(), evt)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, evt, gotA)
	assert.Equal(t, evt, gotB)
}

func TestLocalUnsubscribeStopsDelivery(t *testing.T) {
	b := NewLocal(nil)

	calls := 0
	unsub := b.Subscribe(func(_ context.Context, _ models.AccountChangeEvent) {
		calls++
	})

	b.Publish(context.Background(), models.AccountChangeEvent{AccountID: "acct-1"})
	unsub()
	b.Publish(context.Background(), models.AccountChangeEvent{AccountID: "acct-1"})

	assert.Equal(t, 1, calls)
}

func TestLocalPublishSurvivesHandlerPanic(t *testing.T) {
	b := NewLocal(nil)

	b.Subscribe(func(_ context.Context, _ models.AccountChangeEvent) {
		panic("boom")
	})

	called := false
	b.Subscribe(func(_ context.Context, _ models.AccountChangeEvent) {
		called = true
	})

	require.NotPanics(t, func() {
		b.Publish(context.Background(), models.AccountChangeEvent{AccountID: "acct-1"})
	})
	assert.True(t, called)
}
