package pubsub

import (
	"context"
	"sync"

	"github.com/qahub/qa-stream/internal/domain"
)

// MockPublisher records published notifications in memory for tests.
type MockPublisher struct {
	mu        sync.Mutex
	Published []domain.Notification

	// PublishErr simulates a broker failure when set.
	PublishErr error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, msg domain.Notification) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (m *MockPublisher) Messages() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, len(m.Published))
	copy(out, m.Published)
	return out
}
