package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/metrics"
)

func newTestRegistry() *Registry {
	return NewRegistry(metrics.NewGateway(prometheus.NewRegistry()))
}

func TestRegistry_KeyIsolation(t *testing.T) {
	r := newTestRegistry()

	matching := newQuestionConn(42)
	other := newQuestionConn(43)
	course := newCourseConn("cs-e4770")
	r.add(matching)
	r.add(other)
	r.add(course)

	msg := domain.AnswerCreated{QuestionID: 42}
	if got := r.Broadcast(msg, []byte(`{}`)); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}

	if len(matching.frames) != 1 {
		t.Fatal("matching connection did not receive the frame")
	}
	if len(other.frames) != 0 || len(course.frames) != 0 {
		t.Fatal("non-matching connections must not be touched")
	}

	f := <-matching.frames
	if f.event != domain.TopicAnswers || string(f.data) != `{}` {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestRegistry_CourseCodeCaseInsensitive(t *testing.T) {
	r := newTestRegistry()

	c := newCourseConn("CS-E4770")
	r.add(c)

	msg := domain.QuestionCreated{CourseCode: "cs-E4770"}
	if got := r.Broadcast(msg, []byte(`{}`)); got != 1 {
		t.Fatalf("expected case-insensitive match, got %d deliveries", got)
	}
}

func TestRegistry_ChurnThenBroadcast(t *testing.T) {
	const n, m = 20, 8
	r := newTestRegistry()

	conns := make([]*conn, n)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = newQuestionConn(42)
		wg.Add(1)
		go func(c *conn) {
			defer wg.Done()
			r.add(c)
		}(conns[i])
	}
	wg.Wait()

	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(c *conn) {
			defer wg.Done()
			r.remove(c)
		}(conns[i])
	}
	wg.Wait()

	got := r.Broadcast(domain.AnswerCreated{QuestionID: 42}, []byte(`{}`))
	if got != n-m {
		t.Fatalf("expected %d deliveries after churn, got %d", n-m, got)
	}
	for _, c := range conns[m:] {
		if len(c.frames) != 1 {
			t.Fatal("a surviving connection missed the frame")
		}
	}
	for _, c := range conns[:m] {
		if len(c.frames) != 0 {
			t.Fatal("a removed connection received a frame")
		}
	}
}

func TestRegistry_RemoveDuringBroadcastIsSafe(t *testing.T) {
	r := newTestRegistry()

	conns := make([]*conn, 50)
	for i := range conns {
		conns[i] = newQuestionConn(7)
		r.add(conns[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.Broadcast(domain.AnswerCreated{QuestionID: 7}, []byte(fmt.Sprintf(`{"i":%d}`, i)))
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range conns {
			r.remove(c)
		}
	}()
	wg.Wait()

	// All connections gone: nothing left to deliver to.
	if got := r.Broadcast(domain.AnswerCreated{QuestionID: 7}, []byte(`{}`)); got != 0 {
		t.Fatalf("expected empty registry, got %d deliveries", got)
	}
}

func TestRegistry_RemoveTwiceIsNoOp(t *testing.T) {
	r := newTestRegistry()
	c := newCourseConn("cs-e4770")
	r.add(c)
	r.remove(c)
	r.remove(c) // second remove: connection already gone
}

func TestRegistry_SlowSubscriberDropsFrames(t *testing.T) {
	r := newTestRegistry()
	c := newQuestionConn(1)
	r.add(c)

	for i := 0; i < connBuffer+5; i++ {
		r.Broadcast(domain.AnswerCreated{QuestionID: 1}, []byte(`{}`))
	}
	// The buffer absorbed what it could; the overflow was dropped
	// rather than blocking the broadcast.
	if len(c.frames) != connBuffer {
		t.Fatalf("expected a full buffer of %d frames, got %d", connBuffer, len(c.frames))
	}
}
