package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/queue"
)

func newQueue(t *testing.T) (*queue.RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// Short block so a Claim against an empty stream returns quickly.
	return queue.NewRedisQueue(client, "ai_gen_answers", "ai_gen_answers_group", "test-consumer", 50*time.Millisecond), client
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("first EnsureGroup: %v", err)
	}
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("second EnsureGroup should ignore BUSYGROUP, got %v", err)
	}
}

func TestAppendClaimAck(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}

	id, err := q.Append(ctx, domain.QuestionPayload{ID: 42, Body: "What is recursion?"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatal("expected a queue-assigned entry id")
	}

	entry, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an entry, got none")
	}
	if entry.ID != id {
		t.Fatalf("expected entry id %s, got %s", id, entry.ID)
	}
	if entry.Question.ID != 42 || entry.Question.Body != "What is recursion?" {
		t.Fatalf("unexpected payload: %+v", entry.Question)
	}

	if err := q.Ack(ctx, entry.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestClaim_EmptyStreamIsNotAnError(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}

	entry, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim on empty stream: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no entry, got %+v", entry)
	}
}

func TestClaim_MalformedEntry(t *testing.T) {
	q, client := newQueue(t)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: "ai_gen_answers",
		Values: map[string]any{"question": "{not json"},
	}).Result()
	if err != nil {
		t.Fatal(err)
	}

	entry, err := q.Claim(ctx)
	if !errors.Is(err, domain.ErrMalformedEntry) {
		t.Fatalf("expected ErrMalformedEntry, got %v", err)
	}
	// The entry id still comes back so the consumer can ack it and
	// keep the group from wedging on a poison entry.
	if entry == nil || entry.ID != id {
		t.Fatalf("expected entry id %s alongside the error, got %+v", id, entry)
	}
}

func TestClaim_DisjointAcrossConsumers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	a := queue.NewRedisQueue(client, "s", "g", "consumer-a", 50*time.Millisecond)
	b := queue.NewRedisQueue(client, "s", "g", "consumer-b", 50*time.Millisecond)

	if err := a.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}

	id1, _ := a.Append(ctx, domain.QuestionPayload{ID: 1, Body: "q1"})
	id2, _ := a.Append(ctx, domain.QuestionPayload{ID: 2, Body: "q2"})

	e1, err := a.Claim(ctx)
	if err != nil || e1 == nil {
		t.Fatalf("consumer a claim: %v %+v", err, e1)
	}
	e2, err := b.Claim(ctx)
	if err != nil || e2 == nil {
		t.Fatalf("consumer b claim: %v %+v", err, e2)
	}

	if e1.ID == e2.ID {
		t.Fatalf("both consumers claimed entry %s", e1.ID)
	}
	claimed := map[string]bool{e1.ID: true, e2.ID: true}
	if !claimed[id1] || !claimed[id2] {
		t.Fatalf("expected %s and %s to be claimed, got %v", id1, id2, claimed)
	}
}
