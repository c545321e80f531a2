package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/generator"
	"github.com/qahub/qa-stream/internal/metrics"
	"github.com/qahub/qa-stream/internal/pubsub"
	"github.com/qahub/qa-stream/internal/queue"
	"github.com/qahub/qa-stream/internal/ratelimiter"
	"github.com/qahub/qa-stream/internal/repository"
)

// Consumer drains the work queue one entry at a time: claim, acknowledge,
// generate answer variants, persist them in one batch, publish one
// notification per persisted answer.
//
// Entries are processed strictly sequentially within one instance;
// cross-process concurrency is safe because the queue's consumer group
// delivers disjoint entries to each group member.
type Consumer struct {
	queue      queue.WorkQueue
	gen        generator.Client
	limiter    *ratelimiter.Limiter
	repo       repository.AnswerRepository
	pub        pubsub.Publisher
	variants   int
	genTimeout time.Duration
	metrics    *metrics.ConsumerMetrics
	logger     *zap.Logger
}

func New(
	q queue.WorkQueue,
	gen generator.Client,
	limiter *ratelimiter.Limiter,
	repo repository.AnswerRepository,
	pub pubsub.Publisher,
	variants int,
	genTimeout time.Duration,
	m *metrics.ConsumerMetrics,
	logger *zap.Logger,
) *Consumer {
	if variants < 1 {
		variants = 1
	}
	return &Consumer{
		queue: q, gen: gen, limiter: limiter, repo: repo, pub: pub,
		variants: variants, genTimeout: genTimeout, metrics: m, logger: logger,
	}
}

// Run blocks until ctx is cancelled. Cancellation is observed between
// claim attempts; an entry already claimed when the signal arrives runs
// to completion before Run returns.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("consumer started", zap.Int("variants", c.variants))

	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping")
			return
		}

		entry, err := c.queue.Claim(ctx)
		switch {
		case errors.Is(err, domain.ErrMalformedEntry):
			// Producer bug. Ack the poison entry so the group does not
			// redeliver it forever, then move on.
			c.logger.Error("malformed queue entry", zap.Error(err))
			if entry != nil {
				c.ack(ctx, entry.ID)
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return
			}
			c.logger.Error("claim failed", zap.Error(err))
			// Back off briefly so a dead broker does not spin the loop.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		case entry == nil:
			c.logger.Debug("no new stream entries")
			continue
		}

		// Shutdown must not cut off an already-claimed entry, so the
		// per-entry work detaches from the loop's cancellation.
		c.process(context.WithoutCancel(ctx), entry)
	}
}

// process runs one claim-to-publish cycle. The entry is acknowledged up
// front: a crash between ack and insert drops this entry's answers,
// giving at-most-once delivery per entry.
func (c *Consumer) process(ctx context.Context, entry *domain.QueueEntry) {
	log := c.logger.With(
		zap.String("entry_id", entry.ID),
		zap.Int64("question_id", entry.Question.ID),
	)

	c.ack(ctx, entry.ID)
	c.metrics.EntriesClaimed.Inc()
	log.Info("acknowledged entry")

	generated := c.generateVariants(ctx, entry.Question.Body, log)
	if len(generated) == 0 {
		log.Warn("dropping entry", zap.Error(domain.ErrNoAnswers))
		return
	}

	rows := make([]repository.NewAnswer, 0, len(generated))
	for _, text := range generated {
		rows = append(rows, repository.NewAnswer{
			QuestionID: entry.Question.ID,
			Body:       text,
			UserID:     domain.SystemUserID,
		})
	}

	answers, err := c.repo.InsertBatch(ctx, rows)
	if err != nil {
		// No redelivery: the entry was already acknowledged.
		log.Error("persist failed, dropping entry", zap.Error(err))
		return
	}
	c.metrics.AnswersPersisted.Add(float64(len(answers)))

	for _, a := range answers {
		msg := domain.AnswerCreated{QuestionID: a.QuestionID, Answer: a}
		if err := c.pub.Publish(ctx, msg); err != nil {
			log.Error("publish failed", zap.Int64("answer_id", a.ID), zap.Error(err))
			continue
		}
		c.metrics.NotificationsPublished.WithLabelValues(msg.Topic()).Inc()
	}

	log.Info("entry processed", zap.Int("answers", len(answers)))
}

// generateVariants fires all variant calls concurrently and joins them.
// Each call is independent: a failed or timed-out variant is skipped
// without cancelling its siblings. Successful texts come back in
// variant order.
func (c *Consumer) generateVariants(ctx context.Context, question string, log *zap.Logger) []string {
	results := make([]string, c.variants)
	failed := make([]bool, c.variants)

	var wg sync.WaitGroup
	for i := 0; i < c.variants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			if err := c.limiter.Wait(ctx); err != nil {
				failed[i] = true
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, c.genTimeout)
			defer cancel()

			start := time.Now()
			text, err := c.gen.Generate(callCtx, question)
			c.metrics.ObserveGeneration(time.Since(start), err)
			if err != nil {
				log.Warn("variant generation failed", zap.Int("variant", i), zap.Error(err))
				failed[i] = true
				return
			}
			results[i] = text
		}(i)
	}
	wg.Wait()

	texts := make([]string, 0, c.variants)
	for i, text := range results {
		if !failed[i] {
			texts = append(texts, text)
		}
	}
	return texts
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.queue.Ack(ctx, entryID); err != nil {
		c.logger.Error("ack failed", zap.String("entry_id", entryID), zap.Error(err))
	}
}
