package domain

import "time"

// SystemUserID is the sentinel identity attached to every generated answer.
const SystemUserID int64 = 0

// Question mirrors the questions table row as the UI consumes it.
type Question struct {
	ID         int64     `json:"id"`
	CourseCode string    `json:"courseCode"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Votes      int       `json:"votes"`
}

// Answer is created by the stream consumer after generation and insert.
// ID and timestamps are assigned by the database; Votes starts at zero
// and is mutated elsewhere.
type Answer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"questionId"`
	Body       string    `json:"body"`
	UserID     int64     `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Votes      int       `json:"votes"`
}

// QuestionPayload is the JSON object stored under the "question" field
// of a work-queue entry.
type QuestionPayload struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// QueueEntry is one claimed unit of work: a question awaiting generated
// answers. ID is the queue-assigned entry id and is what gets acknowledged.
type QueueEntry struct {
	ID       string
	Question QuestionPayload
}
