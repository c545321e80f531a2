package gateway

import (
	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/domain"
)

// Forwarder bridges the pub/sub channel to the connection registry:
// every inbound message is decoded and fanned out to the matching
// connections, in arrival order. Messages for keys nobody subscribed to
// fall through silently.
type Forwarder struct {
	registry *Registry
	logger   *zap.Logger
}

func NewForwarder(registry *Registry, logger *zap.Logger) *Forwarder {
	return &Forwarder{registry: registry, logger: logger}
}

// Handle is the pubsub.Handler plugged into the subscriber.
func (f *Forwarder) Handle(topic string, payload []byte) {
	msg, err := domain.DecodeNotification(topic, payload)
	if err != nil {
		// Undecodable payloads indicate a publisher bug, not load.
		f.logger.Error("dropping pub/sub message", zap.String("topic", topic), zap.Error(err))
		return
	}

	delivered := f.registry.Broadcast(msg, payload)
	f.logger.Debug("forwarded message",
		zap.String("topic", topic),
		zap.String("key", msg.Key()),
		zap.Int("delivered", delivered),
	)
}
