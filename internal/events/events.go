package events

import (
	"context"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/google/uuid"
)

const (
	// Source identifies this service on every published event.
	Source = "exam-attempt-service"

	// Version of the event envelope schema.
	Version = "1.0"
)

// Event types published by the attempt lifecycle.
const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
	EventAttemptGraded    = "attempt.graded"
)

// Event is the envelope for every message this service publishes.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and the current time.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    Source,
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AttemptStartedEvent is emitted when a new attempt row is created.
type AttemptStartedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	ExamID        uint      `json:"exam_id"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	StartedAt     time.Time `json:"started_at"`
}

// AttemptCompletedEvent is emitted on submission or timeout.
type AttemptCompletedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	ExamID        uint      `json:"exam_id"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	EndReason     string    `json:"end_reason"`
	CompletedAt   time.Time `json:"completed_at"`
	Percentage    float64   `json:"percentage"`
	Pending       int       `json:"pending"`
}

// AttemptGradedEvent is emitted when manual grading changes a score.
type AttemptGradedEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	ExamID     uint    `json:"exam_id"`
	StudentID  string  `json:"student_id"`
	GraderID   string  `json:"grader_id"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
	Pending    int     `json:"pending"`
}

// EventPublisher abstracts the transport used to emit events.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// CompletedEventFrom builds the completion payload from a finished attempt.
func CompletedEventFrom(attempt *models.ExamAttempt, breakdown *models.ScoreBreakdown) *AttemptCompletedEvent {
	evt := &AttemptCompletedEvent{
		AttemptID:     attempt.ID,
		ExamID:        attempt.ExamID,
		StudentID:     attempt.StudentID,
		AttemptNumber: attempt.AttemptNumber,
	}
	if attempt.EndReason != nil {
		evt.EndReason = *attempt.EndReason
	}
	if attempt.CompletedAt != nil {
		evt.CompletedAt = *attempt.CompletedAt
	}
	if breakdown != nil {
		evt.Percentage = breakdown.Percentage
		evt.Pending = breakdown.PendingQuestions
	}
	return evt
}
