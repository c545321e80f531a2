package gateway

import (
	"strings"
	"sync"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/metrics"
)

// frame is one outbound SSE event, ready to write.
type frame struct {
	event string
	data  []byte
}

// conn is one open SSE connection. Frames are delivered through a
// buffered channel drained by the connection's handler goroutine, so
// fan-out never blocks on a slow peer; a full buffer drops the frame
// for that connection only.
type conn struct {
	frames     chan frame
	questionID int64
	courseCode string
	byQuestion bool
}

const connBuffer = 32

func newQuestionConn(id int64) *conn {
	return &conn{frames: make(chan frame, connBuffer), questionID: id, byQuestion: true}
}

func newCourseConn(code string) *conn {
	return &conn{frames: make(chan frame, connBuffer), courseCode: strings.ToLower(code)}
}

// Registry holds the two connection registries: question-keyed and
// course-keyed. A connection belongs to exactly one of them. The maps
// are guarded by one RWMutex; fan-out snapshots the matching set under
// the read lock and sends outside it, so a concurrent remove during a
// broadcast is harmless; the removed connection just receives into a
// buffer nobody drains.
//
// State is process-local and rebuilt from scratch on restart:
// reconnecting clients resubscribe.
type Registry struct {
	mu         sync.RWMutex
	byQuestion map[int64]map[*conn]struct{}
	byCourse   map[string]map[*conn]struct{}
	metrics    *metrics.GatewayMetrics
}

// NewRegistry returns an empty registry. It is injected into the
// gateway at construction so tests can run several gateways side by side.
func NewRegistry(m *metrics.GatewayMetrics) *Registry {
	return &Registry{
		byQuestion: make(map[int64]map[*conn]struct{}),
		byCourse:   make(map[string]map[*conn]struct{}),
		metrics:    m,
	}
}

func (r *Registry) add(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.byQuestion {
		set := r.byQuestion[c.questionID]
		if set == nil {
			set = make(map[*conn]struct{})
			r.byQuestion[c.questionID] = set
		}
		set[c] = struct{}{}
		r.metrics.OpenConnections.WithLabelValues("question").Inc()
		return
	}

	set := r.byCourse[c.courseCode]
	if set == nil {
		set = make(map[*conn]struct{})
		r.byCourse[c.courseCode] = set
	}
	set[c] = struct{}{}
	r.metrics.OpenConnections.WithLabelValues("course").Inc()
}

// remove deletes the connection from whichever registry holds it.
// Removing a connection that is already gone is a no-op.
func (r *Registry) remove(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.byQuestion {
		set, ok := r.byQuestion[c.questionID]
		if !ok {
			return
		}
		if _, held := set[c]; !held {
			return
		}
		delete(set, c)
		if len(set) == 0 {
			delete(r.byQuestion, c.questionID)
		}
		r.metrics.OpenConnections.WithLabelValues("question").Dec()
		return
	}

	set, ok := r.byCourse[c.courseCode]
	if !ok {
		return
	}
	if _, held := set[c]; !held {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byCourse, c.courseCode)
	}
	r.metrics.OpenConnections.WithLabelValues("course").Dec()
}

// Broadcast forwards a decoded notification to every connection whose
// key matches. payload is the original pub/sub JSON, forwarded verbatim.
// Returns the number of connections the frame was handed to.
func (r *Registry) Broadcast(msg domain.Notification, payload []byte) int {
	var targets []*conn

	r.mu.RLock()
	switch m := msg.(type) {
	case domain.AnswerCreated:
		for c := range r.byQuestion[m.QuestionID] {
			targets = append(targets, c)
		}
	case domain.QuestionCreated:
		for c := range r.byCourse[m.Key()] {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	f := frame{event: msg.Topic(), data: payload}
	delivered := 0
	for _, c := range targets {
		select {
		case c.frames <- f:
			delivered++
		default:
			// slow subscriber, drop this frame for this connection
		}
	}
	return delivered
}
