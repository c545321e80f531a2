package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Pub/sub topics. The topic a message arrives on selects its variant,
// so the union stays exhaustive without a discriminator field in the JSON.
const (
	TopicAnswers   = "answers"
	TopicQuestions = "questions"
)

// Notification is the tagged union carried over pub/sub:
// AnswerCreated on TopicAnswers, QuestionCreated on TopicQuestions.
type Notification interface {
	// Topic returns the pub/sub topic this message is published to.
	Topic() string
	// Key returns the subscription key a connection must hold to
	// receive this message.
	Key() string
}

// AnswerCreated announces one persisted answer for a question.
type AnswerCreated struct {
	QuestionID int64  `json:"questionId"`
	Answer     Answer `json:"answer"`
}

func (AnswerCreated) Topic() string { return TopicAnswers }

func (m AnswerCreated) Key() string { return strconv.FormatInt(m.QuestionID, 10) }

// QuestionCreated announces a new question on a course.
type QuestionCreated struct {
	CourseCode string   `json:"courseCode"`
	Question   Question `json:"question"`
}

func (QuestionCreated) Topic() string { return TopicQuestions }

// Key lower-cases the course code: course subscriptions match
// case-insensitively.
func (m QuestionCreated) Key() string { return strings.ToLower(m.CourseCode) }

// DecodeNotification parses a pub/sub payload received on topic.
// An unknown topic indicates a subscription bug, not bad input.
func DecodeNotification(topic string, payload []byte) (Notification, error) {
	switch topic {
	case TopicAnswers:
		var m AnswerCreated
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s message: %w", topic, err)
		}
		return m, nil
	case TopicQuestions:
		var m QuestionCreated
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s message: %w", topic, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}
