package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptLimitExceeded: the student has no attempts left. Fatal to
	// the start flow; callers present remaining-attempt info, not a retry.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")

	// ErrAlreadyCompleted: the attempt is already completed. Complete
	// returns the existing record alongside this error so racing submit
	// triggers can treat it as a no-op success.
	ErrAlreadyCompleted = errors.New("attempt already completed")
)

// ProgressUpdate is one autosave payload: answer-map entries to merge plus
// the navigation pointer. Nil pointer fields leave the stored value alone,
// so concurrent saves converge per field rather than per record.
type ProgressUpdate struct {
	Answers         models.AnswerMap
	CurrentSection  *int
	CurrentQuestion *int
	SavedAt         time.Time
}

// AttemptStore owns the durable attempt record: one row per
// (exam, student, ordinal), created on start, mutated by autosave, frozen
// on completion. Implementations must keep Complete idempotent — the
// user-submit and timer-submit triggers race by design (§ concurrency) and
// the store, not the client, resolves them.
type AttemptStore interface {
	// FindOrCreate returns the student's in_progress attempt for the exam
	// if one exists; otherwise creates the next-ordinal attempt with the
	// given section snapshot, failing with ErrAttemptLimitExceeded once
	// completed attempts reach the exam's maximum.
	FindOrCreate(ctx context.Context, exam *models.Exam, sections []models.Section, studentID string) (*models.ExamAttempt, error)

	GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error)

	// SaveProgress merges the update into the attempt. Writes against a
	// completed attempt return ErrAlreadyCompleted and change nothing.
	SaveProgress(ctx context.Context, attemptID uint, update ProgressUpdate) error

	// Complete freezes and scores the attempt exactly once. A second call
	// returns the existing record with ErrAlreadyCompleted.
	Complete(ctx context.Context, attemptID uint, finalAnswers models.AnswerMap, breakdown *models.ScoreBreakdown, timeUsedMinutes int, endReason string) (*models.ExamAttempt, error)

	// UpdateScore rewrites the answer map and breakdown of a completed
	// attempt after manual free-response grading.
	UpdateScore(ctx context.Context, attemptID uint, answers models.AnswerMap, breakdown *models.ScoreBreakdown) error

	CountCompleted(ctx context.Context, examID uint, studentID string) (int, error)
	ListByExam(ctx context.Context, examID uint) ([]*models.ExamAttempt, error)
}

// ExamStore reads the authored exam definitions. The attempt engine treats
// them as read-only; versioning happens implicitly through the per-attempt
// section snapshot.
type ExamStore interface {
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
}

// Repository aggregates the stores behind one handle, the shape services
// take as a dependency.
type Repository interface {
	Exam() ExamStore
	Attempt() AttemptStore
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFoundError reports whether err is either not-found sentinel.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrExamNotFound) || errors.Is(err, ErrAttemptNotFound)
}
