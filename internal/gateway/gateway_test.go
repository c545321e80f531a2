package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/gateway"
	"github.com/qahub/qa-stream/internal/metrics"
	"github.com/qahub/qa-stream/internal/sseclient"
)

// newGateway stands up a full gateway over httptest and returns the
// server plus the forwarder that plays the role of the pub/sub feed.
func newGateway(t *testing.T) (*httptest.Server, *gateway.Forwarder) {
	t.Helper()

	promReg := prometheus.NewRegistry()
	m := metrics.NewGateway(promReg)
	reg := gateway.NewRegistry(m)
	h := gateway.NewHandler(reg, 25*time.Millisecond, m, zap.NewNop())

	srv := httptest.NewServer(gateway.NewRouter(h, promReg, zap.NewNop()))
	t.Cleanup(srv.Close)

	return srv, gateway.NewForwarder(reg, zap.NewNop())
}

func publish(t *testing.T, fwd *gateway.Forwarder, msg domain.Notification) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fwd.Handle(msg.Topic(), payload)
}

// eventRecorder collects events of one type from an sseclient source and
// blocks the hello handshake for connection-ready synchronization.
type eventRecorder struct {
	mu     sync.Mutex
	events []sseclient.Event
	hello  chan struct{}
}

func subscribe(t *testing.T, url, eventType string) (*sseclient.Source, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{hello: make(chan struct{}, 1)}

	src := sseclient.New(sseclient.WithBackoffSchedule([]time.Duration{10 * time.Millisecond}))
	src.AddEventListener("hello", func(sseclient.Event) {
		select {
		case rec.hello <- struct{}{}:
		default:
		}
	})
	src.AddEventListener(eventType, func(ev sseclient.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, ev)
		rec.mu.Unlock()
	})

	src.Use(url)
	t.Cleanup(src.Quit)

	select {
	case <-rec.hello:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hello event")
	}
	return src, rec
}

func (r *eventRecorder) waitForEvents(t *testing.T, n int) []sseclient.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := make([]sseclient.Event, len(r.events))
			copy(out, r.events)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestServeSSE_RejectsBadSubscriptions(t *testing.T) {
	srv, _ := newGateway(t)

	cases := []struct {
		name  string
		query string
	}{
		{"no key", ""},
		{"both keys", "?question_id=1&course_code=cs-e4770"},
		{"non-numeric question id", "?question_id=abc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/sse" + tc.query)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Fatal("expected an error message in the body")
			}
		})
	}
}

func TestServeSSE_ForwardsAnswersInOrder(t *testing.T) {
	srv, fwd := newGateway(t)

	_, rec := subscribe(t, srv.URL+"/sse?question_id=42", domain.TopicAnswers)

	for _, body := range []string{"first", "second", "third"} {
		publish(t, fwd, domain.AnswerCreated{
			QuestionID: 42,
			Answer:     domain.Answer{QuestionID: 42, Body: body, UserID: domain.SystemUserID},
		})
	}

	events := rec.waitForEvents(t, 3)
	for i, want := range []string{"first", "second", "third"} {
		var msg domain.AnswerCreated
		if err := json.Unmarshal([]byte(events[i].Data), &msg); err != nil {
			t.Fatalf("event %d: decode: %v", i, err)
		}
		if msg.Answer.Body != want {
			t.Fatalf("event %d: expected body %q, got %q", i, want, msg.Answer.Body)
		}
	}
}

func TestServeSSE_QuestionKeyIsolation(t *testing.T) {
	srv, fwd := newGateway(t)

	_, matching := subscribe(t, srv.URL+"/sse?question_id=42", domain.TopicAnswers)
	_, other := subscribe(t, srv.URL+"/sse?question_id=43", domain.TopicAnswers)

	publish(t, fwd, domain.AnswerCreated{QuestionID: 42, Answer: domain.Answer{QuestionID: 42, Body: "only for 42"}})

	matching.waitForEvents(t, 1)
	time.Sleep(50 * time.Millisecond)
	if n := other.count(); n != 0 {
		t.Fatalf("subscriber for another question received %d events", n)
	}
}

func TestServeSSE_CourseCodeMatchesCaseInsensitively(t *testing.T) {
	srv, fwd := newGateway(t)

	_, rec := subscribe(t, srv.URL+"/sse?course_code=cs-e4770", domain.TopicQuestions)
	_, otherCourse := subscribe(t, srv.URL+"/sse?course_code=cs-e4771", domain.TopicQuestions)

	publish(t, fwd, domain.QuestionCreated{
		CourseCode: "CS-E4770",
		Question:   domain.Question{ID: 7, CourseCode: "CS-E4770", Body: "what is a goroutine?"},
	})

	events := rec.waitForEvents(t, 1)
	var msg domain.QuestionCreated
	if err := json.Unmarshal([]byte(events[0].Data), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Question.ID != 7 {
		t.Fatalf("unexpected question: %+v", msg.Question)
	}

	time.Sleep(50 * time.Millisecond)
	if n := otherCourse.count(); n != 0 {
		t.Fatalf("subscriber for another course received %d events", n)
	}
}

func TestServeSSE_KeepAliveDoesNotDisturbEvents(t *testing.T) {
	srv, fwd := newGateway(t)

	_, rec := subscribe(t, srv.URL+"/sse?question_id=5", domain.TopicAnswers)

	// Outlast a couple of keep-alive ticks, then publish. The comment
	// frames in between must not surface as events.
	time.Sleep(80 * time.Millisecond)
	publish(t, fwd, domain.AnswerCreated{QuestionID: 5, Answer: domain.Answer{QuestionID: 5, Body: "late"}})

	events := rec.waitForEvents(t, 1)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
}

func TestServeSSE_UndecodableMessageIsDropped(t *testing.T) {
	srv, fwd := newGateway(t)

	_, rec := subscribe(t, srv.URL+"/sse?question_id=9", domain.TopicAnswers)

	fwd.Handle(domain.TopicAnswers, []byte("{not json"))
	publish(t, fwd, domain.AnswerCreated{QuestionID: 9, Answer: domain.Answer{QuestionID: 9, Body: "after garbage"}})

	events := rec.waitForEvents(t, 1)
	var msg domain.AnswerCreated
	if err := json.Unmarshal([]byte(events[0].Data), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Answer.Body != "after garbage" {
		t.Fatalf("unexpected event after dropped garbage: %+v", msg)
	}
}
