package repository

import (
	"context"

	"github.com/qahub/qa-stream/internal/domain"
)

// NewAnswer carries the generated fields of an answer about to be
// persisted; the database assigns id, timestamps, and the zero vote count.
type NewAnswer struct {
	QuestionID int64
	Body       string
	UserID     int64
}

// AnswerRepository defines the persistence boundary of the stream
// consumer: one atomic multi-row insert per queue entry.
// The pgx implementation is in pg_answer_repo.go.
// Tests use a hand-written mock (mock_answer_repo.go).
type AnswerRepository interface {
	// InsertBatch persists all answers in a single statement and
	// returns the stored rows in insert order, with database-assigned
	// ids and timestamps filled in.
	InsertBatch(ctx context.Context, answers []NewAnswer) ([]domain.Answer, error)
}
