package services

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the service layer. The fatal start-flow
// classes all fire before any attempt row is created or mutated — none of
// them can corrupt an in-progress attempt.
var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptLimitExceeded: no attempts left. Present remaining-attempt
	// info to the user; retrying never helps.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")

	// ErrStructureEmpty: the exam has no gradable content, so the timed
	// flow must not start at all.
	ErrStructureEmpty = errors.New("exam has no questions")

	// ErrAttemptAlreadySubmitted: a mutation arrived for a completed
	// attempt. Submit itself treats this as a no-op, not an error.
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
)

// ValidationError reports one request field the business rules rejected.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError carries who tried what on which resource.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// AvailabilityError reports a start outside the exam's availability
// window, carrying the boundary instant for the user-facing message.
type AvailabilityError struct {
	ExamID   uint
	Boundary time.Time
	// NotYetAvailable distinguishes "too early" from "window closed".
	NotYetAvailable bool
}

func (e *AvailabilityError) Error() string {
	if e.NotYetAvailable {
		return fmt.Sprintf("exam %d is not available until %s", e.ExamID, e.Boundary.Format(time.RFC3339))
	}
	return fmt.Sprintf("exam %d closed at %s", e.ExamID, e.Boundary.Format(time.RFC3339))
}

func NewNotYetAvailableError(examID uint, opens time.Time) *AvailabilityError {
	return &AvailabilityError{ExamID: examID, Boundary: opens, NotYetAvailable: true}
}

func NewExamClosedError(examID uint, closed time.Time) *AvailabilityError {
	return &AvailabilityError{ExamID: examID, Boundary: closed}
}
