package domain

import "errors"

// Sentinel errors used throughout the application.
// The gateway translates the client-protocol ones to HTTP status codes
// via a single mapError function.
var (
	// ErrMissingSubscriptionKey: /sse called with neither question_id
	// nor course_code.
	ErrMissingSubscriptionKey = errors.New("exactly one of question_id or course_code is required")
	// ErrAmbiguousSubscriptionKey: /sse called with both key types.
	ErrAmbiguousSubscriptionKey = errors.New("question_id and course_code are mutually exclusive")
	// ErrInvalidQuestionID: question_id present but not an integer.
	ErrInvalidQuestionID = errors.New("question_id must be an integer")

	// ErrMalformedEntry: a claimed queue entry did not carry valid
	// question JSON. This is a producer bug, not an environmental
	// condition; it is logged at error level.
	ErrMalformedEntry = errors.New("malformed queue entry")

	// ErrUnknownTopic: a pub/sub payload arrived on a topic the
	// decoder has no variant for.
	ErrUnknownTopic = errors.New("unknown notification topic")

	// ErrSendUnsupported: the SSE transport is unidirectional.
	ErrSendUnsupported = errors.New("send is not supported over a server-sent event channel")

	// ErrNoAnswers: every generation variant for an entry failed.
	ErrNoAnswers = errors.New("no answer variants were generated")
)
