// Package eventbus decouples the Account Registry from the Priority
// Scheduler (and any other interested subsystem) via a small pub/sub
// abstraction. The default Bus is in-process; an MQTT-backed Bus is
// available for external observability without requiring a live broker
// in tests.
package eventbus

import (
	"context"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// Handler receives account change events. A Handler that panics has the
// panic recovered and logged by the bus; it is not unsubscribed, and the
// remaining handlers still receive the event.
type Handler func(ctx context.Context, evt models.AccountChangeEvent)

// Bus publishes and subscribes to account change events.
type Bus interface {
	// Publish delivers evt to every currently-subscribed Handler.
	Publish(ctx context.Context, evt models.AccountChangeEvent)
	// Subscribe registers h and returns an Unsubscribe func.
	Subscribe(h Handler) (unsubscribe func())
	// Close releases any resources held by the bus (connections, goroutines).
	Close() error
}
