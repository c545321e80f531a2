package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/qahub/qa-stream/internal/domain"
)

// Publisher is the consumer's publish-only view of the pub/sub channel:
// one Publish per persisted answer (or new question).
type Publisher interface {
	Publish(ctx context.Context, msg domain.Notification) error
}

// Handler receives one raw pub/sub payload with the topic it arrived on.
type Handler func(topic string, payload []byte)

// RedisPublisher publishes notifications to Redis on the topic the
// message variant declares.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg domain.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Topic(), err)
	}
	if err := p.client.Publish(ctx, msg.Topic(), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic(), err)
	}
	return nil
}

// RedisSubscriber is the gateway's subscribe-only view of the channel:
// both fixed topics, every payload handed to the injected handler.
// No back-pressure is applied here; Redis delivery buffering governs
// loss behaviour for slow consumers.
type RedisSubscriber struct {
	client *redis.Client
}

func NewRedisSubscriber(client *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

// Run subscribes to the answers and questions topics and dispatches
// inbound messages until ctx is cancelled.
func (s *RedisSubscriber) Run(ctx context.Context, handle Handler) error {
	sub := s.client.Subscribe(ctx, domain.TopicAnswers, domain.TopicQuestions)
	defer sub.Close()

	// Force the SUBSCRIBE round trip so a broken Redis connection
	// fails Run instead of silently receiving nothing.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			handle(m.Channel, []byte(m.Payload))
		}
	}
}

// compile-time check that RedisPublisher implements Publisher
var _ Publisher = (*RedisPublisher)(nil)
