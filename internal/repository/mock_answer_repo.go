package repository

import (
	"context"
	"sync"
	"time"

	"github.com/qahub/qa-stream/internal/domain"
)

// MockAnswerRepository is a hand-written, in-memory implementation of
// AnswerRepository used in unit tests. No mock-generation library needed.
type MockAnswerRepository struct {
	mu      sync.Mutex
	nextID  int64
	Answers []domain.Answer

	// InsertErr simulates a persistence failure when set.
	InsertErr error
}

func NewMockAnswerRepository() *MockAnswerRepository {
	return &MockAnswerRepository{nextID: 1}
}

func (m *MockAnswerRepository) InsertBatch(_ context.Context, answers []NewAnswer) ([]domain.Answer, error) {
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := make([]domain.Answer, 0, len(answers))
	for _, a := range answers {
		stored = append(stored, domain.Answer{
			ID:         m.nextID,
			QuestionID: a.QuestionID,
			Body:       a.Body,
			UserID:     a.UserID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		m.nextID++
	}
	m.Answers = append(m.Answers, stored...)
	return stored, nil
}
