package eventbus

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/models"
	pubsub "github.com/northlane-labs/social-tracker/pkg/mqtt"
)

const accountEventQoS = 1

// MQTT is a Bus backed by a broker, for external observability of account
// change events. Local subscribers registered via Subscribe still fire
// in-process; publishing additionally fans the event out to the broker
// under "tracking/registry/event/{kind}".
type MQTT struct {
	client *pubsub.Client
	local  *Local
	logger *zap.Logger
}

// NewMQTT wraps client with the same in-process fan-out Local provides,
// plus a broker publish on every Publish call. NewMQTT itself only
// forwards its own Publish calls outward; call ListenRemote on a connected
// client if events from other processes should also reach local handlers.
func NewMQTT(client *pubsub.Client, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTT{
		client: client,
		local:  NewLocal(logger),
		logger: logger,
	}
}

func (b *MQTT) Subscribe(h Handler) func() {
	return b.local.Subscribe(h)
}

func (b *MQTT) Publish(ctx context.Context, evt models.AccountChangeEvent) {
	b.local.Publish(ctx, evt)

	topic := pubsub.ComponentEventTopic(pubsub.ComponentRegistry, string(evt.Kind))
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("failed to marshal account change event",
			zap.String("accountId", evt.AccountID), zap.Error(err))
		return
	}
	if err := b.client.Publish(topic, accountEventQoS, false, payload); err != nil {
		b.logger.Warn("failed to publish account change event to broker",
			zap.String("topic", topic), zap.Error(err))
	}
}

// ListenRemote subscribes to the broker's registry event topic so that
// account change events published by other engine instances are relayed
// into this process's local handlers.
func (b *MQTT) ListenRemote() error {
	topic := pubsub.NewTopicBuilder().
		Component(pubsub.ComponentRegistry).
		Action(pubsub.ActionEvent).
		Resource("+").
		Build()

	return b.client.Subscribe(topic, accountEventQoS, func(_ string, payload []byte) error {
		var evt models.AccountChangeEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		b.local.Publish(context.Background(), evt)
		return nil
	})
}

func (b *MQTT) Close() error {
	b.client.Disconnect()
	return nil
}
