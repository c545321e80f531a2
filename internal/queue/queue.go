package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qahub/qa-stream/internal/domain"
)

// entryField is the stream field carrying the question JSON.
const entryField = "question"

// WorkQueue is the consumer-group boundary of the durable work queue.
// The Redis Streams implementation is in this file; tests run it
// against miniredis.
type WorkQueue interface {
	// EnsureGroup creates the consumer group, treating "already exists"
	// as success.
	EnsureGroup(ctx context.Context) error
	// Claim blocks up to the configured claim-block duration for one
	// new entry. A nil entry with a nil error means the wait timed out
	// with no work, not an error condition.
	Claim(ctx context.Context) (*domain.QueueEntry, error)
	// Ack acknowledges a claimed entry. Each entry is acknowledged at
	// most once.
	Ack(ctx context.Context, entryID string) error
	// Append adds a question to the stream. The producing HTTP API is
	// external; Append lives here because the entry encoding does.
	Append(ctx context.Context, q domain.QuestionPayload) (string, error)
}

// RedisQueue implements WorkQueue on a Redis Stream with XREADGROUP /
// XACK consumer-group semantics, so multiple consumer processes in the
// same group claim disjoint entries.
type RedisQueue struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	claimBlock time.Duration
}

// NewRedisQueue wires a queue client. consumer must be unique per
// process instance within the group (a random UUID in main).
func NewRedisQueue(client *redis.Client, stream, group, consumer string, claimBlock time.Duration) *RedisQueue {
	return &RedisQueue{
		client:     client,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		claimBlock: claimBlock,
	}
}

func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	// Read from "0" so entries appended before the group existed are
	// still delivered. MKSTREAM creates the stream if absent.
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// isBusyGroup reports whether err is Redis's BUSYGROUP reply, returned
// when the consumer group already exists.
func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (q *RedisQueue) Claim(ctx context.Context) (*domain.QueueEntry, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.claimBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // block timed out, no new entries
		}
		return nil, fmt.Errorf("read from stream %s: %w", q.stream, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	raw, ok := msg.Values[entryField].(string)
	if !ok {
		return &domain.QueueEntry{ID: msg.ID}, fmt.Errorf("%w: entry %s has no %q field", domain.ErrMalformedEntry, msg.ID, entryField)
	}

	var payload domain.QuestionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return &domain.QueueEntry{ID: msg.ID}, fmt.Errorf("%w: entry %s: %v", domain.ErrMalformedEntry, msg.ID, err)
	}
	return &domain.QueueEntry{ID: msg.ID, Question: payload}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, entryID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, entryID).Err(); err != nil {
		return fmt.Errorf("ack entry %s: %w", entryID, err)
	}
	return nil
}

func (q *RedisQueue) Append(ctx context.Context, question domain.QuestionPayload) (string, error) {
	raw, err := json.Marshal(question)
	if err != nil {
		return "", fmt.Errorf("encode question payload: %w", err)
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{entryField: string(raw)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to stream %s: %w", q.stream, err)
	}
	return id, nil
}

// compile-time check that RedisQueue implements WorkQueue
var _ WorkQueue = (*RedisQueue)(nil)
