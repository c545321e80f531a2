package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/domain"
	"github.com/qahub/qa-stream/internal/metrics"
)

// helloPayload is the first event sent on every accepted connection.
const helloPayload = "hello from server"

// Handler serves the long-lived SSE subscription endpoint.
type Handler struct {
	registry  *Registry
	keepAlive time.Duration
	metrics   *metrics.GatewayMetrics
	logger    *zap.Logger
}

func NewHandler(registry *Registry, keepAlive time.Duration, m *metrics.GatewayMetrics, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, keepAlive: keepAlive, metrics: m, logger: logger}
}

// subscriptionConn validates the query parameters and builds the
// connection for the requested registry. Exactly one of question_id and
// course_code must be present.
func subscriptionConn(r *http.Request) (*conn, error) {
	questionID := r.URL.Query().Get("question_id")
	courseCode := r.URL.Query().Get("course_code")

	switch {
	case questionID != "" && courseCode != "":
		return nil, domain.ErrAmbiguousSubscriptionKey
	case questionID != "":
		id, err := strconv.ParseInt(questionID, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidQuestionID
		}
		return newQuestionConn(id), nil
	case courseCode != "":
		return newCourseConn(courseCode), nil
	default:
		return nil, domain.ErrMissingSubscriptionKey
	}
}

// ServeSSE handles GET /sse. The connection is registered under its
// subscription key, greeted with a hello event, and then fed forwarded
// notifications and periodic keep-alive comments until the peer goes away.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	c, err := subscriptionConn(r)
	if err != nil {
		h.metrics.RejectedSubscribe.Inc()
		h.logger.Info("rejected subscribe", zap.String("remote", r.RemoteAddr), zap.Error(err))
		mapError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.registry.add(c)
	defer h.registry.remove(c)

	log := h.logger.With(
		zap.Int64("question_id", c.questionID),
		zap.String("course_code", c.courseCode),
	)
	log.Info("client connected")
	defer log.Info("connection closed")

	if err := writeEvent(w, flusher, "hello", []byte(helloPayload)); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Comment frame so intermediaries and clients can detect a
			// dead connection.
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case f := <-c.frames:
			if err := writeEvent(w, flusher, f.event, f.data); err != nil {
				return
			}
			h.metrics.EventsForwarded.WithLabelValues(f.event).Inc()
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
