package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/qahub/qa-stream/internal/domain"
)

func TestAnswerCreated_Key(t *testing.T) {
	m := domain.AnswerCreated{QuestionID: 42}
	if m.Key() != "42" {
		t.Fatalf("expected key=42, got %s", m.Key())
	}
	if m.Topic() != domain.TopicAnswers {
		t.Fatalf("expected topic=answers, got %s", m.Topic())
	}
}

func TestQuestionCreated_KeyIsLowerCased(t *testing.T) {
	m := domain.QuestionCreated{CourseCode: "CS-E4770"}
	if m.Key() != "cs-e4770" {
		t.Fatalf("expected lower-cased key, got %s", m.Key())
	}
}

func TestDecodeNotification_Answers(t *testing.T) {
	orig := domain.AnswerCreated{
		QuestionID: 42,
		Answer: domain.Answer{
			ID:         7,
			QuestionID: 42,
			Body:       "Recursion is when a function calls itself.",
			UserID:     domain.SystemUserID,
			CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	payload, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := domain.DecodeNotification(domain.TopicAnswers, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := decoded.(domain.AnswerCreated)
	if !ok {
		t.Fatalf("expected AnswerCreated, got %T", decoded)
	}
	if got.Answer.Body != orig.Answer.Body || got.QuestionID != 42 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodeNotification_Questions(t *testing.T) {
	payload := []byte(`{"courseCode":"CS-E4770","question":{"id":3,"courseCode":"CS-E4770","body":"What is a goroutine?"}}`)

	decoded, err := domain.DecodeNotification(domain.TopicQuestions, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := decoded.(domain.QuestionCreated)
	if !ok {
		t.Fatalf("expected QuestionCreated, got %T", decoded)
	}
	if got.Key() != "cs-e4770" {
		t.Fatalf("expected normalized key, got %s", got.Key())
	}
	if got.Question.ID != 3 {
		t.Fatalf("expected question id=3, got %d", got.Question.ID)
	}
}

func TestDecodeNotification_UnknownTopic(t *testing.T) {
	_, err := domain.DecodeNotification("votes", []byte(`{}`))
	if !errors.Is(err, domain.ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestDecodeNotification_BadJSON(t *testing.T) {
	_, err := domain.DecodeNotification(domain.TopicAnswers, []byte(`{not json`))
	if err == nil {
		t.Fatal("expected a decode error")
	}
}
