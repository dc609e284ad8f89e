package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// Local is an in-process Bus. It is the default used outside of
// environments that run an MQTT broker, and is what tests use.
type Local struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

// NewLocal constructs a Local bus.
func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		logger:   logger,
		handlers: make(map[int]Handler),
	}
}

func (b *Local) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *Local) Publish(ctx context.Context, evt models.AccountChangeEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("eventbus handler panicked",
						zap.String("accountId", evt.AccountID),
						zap.Any("recover", r))
				}
			}()
			h(ctx, evt)
		}()
	}
}

func (b *Local) Close() error { return nil }
