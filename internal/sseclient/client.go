package sseclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/domain"
)

// State of the logical channel. The wrapper owns at most one physical
// connection regardless of how many logical subscribers exist.
type State int

const (
	// StateDormant: no subscribers, no connection, no pending timer.
	StateDormant State = iota
	// StateOpening: a dial is in flight.
	StateOpening
	// StateOpen: the stream is connected and delivering events.
	StateOpen
	// StateBackoff: the connection dropped and a reopen timer is pending.
	StateBackoff
)

// reopenSchedule is the fixed backoff table. Attempts past the end hold
// at the last value; the counter resets on every successful open.
var reopenSchedule = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Listener receives every dispatched event of its registered type.
type Listener func(Event)

// Source is a reference-counted resilient SSE client. Use opens the
// physical connection for the first subscriber, Quit closes it with the
// last one, and transport drops in between are hidden behind automatic
// reopens on the backoff schedule.
//
// Listeners are owned by the wrapper, not by the transport, so they
// survive reconnects; events that occurred before a listener was
// registered are not replayed.
type Source struct {
	mu          sync.Mutex
	url         string
	state       State
	subscribers int
	reopenCount int
	retryTimer  *time.Timer
	cancelRead  context.CancelFunc
	gen         uint64 // invalidates stale readers and timers
	listeners   map[string][]Listener

	httpClient *http.Client
	schedule   []time.Duration
	notify     func(string)
	logger     *zap.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient replaces the transport (tests point it at httptest).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.httpClient = c }
}

// WithNotify sets the alert-equivalent callback for server error events.
func WithNotify(fn func(string)) Option {
	return func(s *Source) { s.notify = fn }
}

// WithBackoffSchedule overrides the reopen table (tests shrink it).
func WithBackoffSchedule(schedule []time.Duration) Option {
	return func(s *Source) { s.schedule = schedule }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

func New(opts ...Option) *Source {
	s := &Source{
		listeners:  make(map[string][]Listener),
		httpClient: &http.Client{},
		schedule:   reopenSchedule,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notify == nil {
		s.notify = func(msg string) {
			s.logger.Error("server error event", zap.String("message", msg))
		}
	}
	return s
}

// Use adds a logical subscriber. The first subscriber opens the physical
// connection; later calls join whatever is already in flight or open.
// A pending reopen timer is cancelled so Use never races a duplicate open.
func (s *Source) Use(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers++
	s.url = url
	s.stopTimerLocked()

	if s.state == StateDormant || s.state == StateBackoff {
		s.openLocked()
	}
}

// Quit removes a logical subscriber. When the count reaches zero the
// physical connection is closed, pending timers are cleared, and the
// wrapper goes dormant instead of retrying.
func (s *Source) Quit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers > 0 {
		s.subscribers--
	}
	if s.subscribers > 0 {
		return
	}

	s.stopTimerLocked()
	if s.cancelRead != nil {
		s.cancelRead()
		s.cancelRead = nil
	}
	s.gen++ // orphan any in-flight reader
	s.state = StateDormant
	s.logger.Info("channel closed")
}

// AddEventListener registers fn for events of the given type. Safe to
// call before, during, or after the open; registrations made while the
// connection is still opening apply as soon as events start flowing.
func (s *Source) AddEventListener(eventType string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[eventType] = append(s.listeners[eventType], fn)
}

// Send is part of the channel surface for transports that support
// client-to-server messages; server-sent events do not.
func (s *Source) Send(any) error {
	return domain.ErrSendUnsupported
}

// State returns the current connection state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// openLocked starts a dial. Caller holds s.mu.
func (s *Source) openLocked() {
	s.state = StateOpening
	s.gen++
	g := s.gen

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRead = cancel

	url := s.url
	s.logger.Info("opening sse connection", zap.String("url", url))
	go s.run(ctx, url, g)
}

// run dials and reads the stream until it ends, then reports the close.
// g identifies the open attempt; a stale generation means Quit or a
// newer open already took over and this reader must exit silently.
func (s *Source) run(ctx context.Context, url string, g uint64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.onClosed(g, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.onClosed(g, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.onClosed(g, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}

	if !s.onOpen(g) {
		return // superseded while dialing
	}

	readErr := parseStream(resp.Body, func(ev Event) {
		s.dispatch(ev)
	})
	s.onClosed(g, readErr)
}

// onOpen marks the connection open and resets the backoff counter.
// Returns false if this attempt was superseded.
func (s *Source) onOpen(g uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g != s.gen {
		return false
	}
	s.state = StateOpen
	s.reopenCount = 0
	s.logger.Info("sse connected", zap.String("url", s.url))
	return true
}

// onClosed handles a transport close or dial failure: schedule a reopen
// on the backoff table while subscribers remain, go dormant otherwise.
func (s *Source) onClosed(g uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g != s.gen {
		return
	}
	s.cancelRead = nil

	if s.subscribers == 0 {
		s.state = StateDormant
		return
	}

	delay := backoffDelay(s.schedule, s.reopenCount)
	s.reopenCount++

	s.state = StateBackoff
	s.logger.Warn("sse connection lost, scheduling reopen",
		zap.Duration("delay", delay),
		zap.Int("attempt", s.reopenCount),
		zap.Error(err),
	)
	s.retryTimer = time.AfterFunc(delay, s.reopen)
}

// backoffDelay returns the reopen delay for attempt n (0-based),
// holding at the last table entry for all later attempts.
func backoffDelay(schedule []time.Duration, n int) time.Duration {
	if n >= len(schedule) {
		n = len(schedule) - 1
	}
	return schedule[n]
}

// reopen fires from the backoff timer. The state check makes a stale
// timer (already cancelled logically by Use or Quit) a no-op.
func (s *Source) reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryTimer = nil
	if s.state != StateBackoff || s.subscribers == 0 {
		return
	}
	s.openLocked()
}

func (s *Source) stopTimerLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// dispatch fans one event out to the listeners registered for its type.
// A server "error" event carries a user-facing message and is surfaced
// through the notify callback instead of being treated as a transport
// fault.
func (s *Source) dispatch(ev Event) {
	if ev.Type == "error" {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &payload); err == nil && payload.Message != "" {
			s.notify(payload.Message)
		} else {
			s.notify(ev.Data)
		}
	}

	s.mu.Lock()
	targets := make([]Listener, len(s.listeners[ev.Type]))
	copy(targets, s.listeners[ev.Type])
	s.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}
