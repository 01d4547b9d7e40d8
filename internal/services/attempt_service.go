package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/clock"
	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/scoring"
	"github.com/ccingram94/galileo-sub000/internal/structure"
	"github.com/ccingram94/galileo-sub000/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAttemptService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) AttemptService {
	return &attemptService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== START / RESUME =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.InfoContext(ctx, "Starting exam attempt",
		"exam_id", req.ExamID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exam, err := s.repo.Exam().GetByID(ctx, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	now := time.Now()
	if err := checkAvailability(exam, now); err != nil {
		return nil, err
	}
	if exam.RequireProctoring && req.ProctorSessionID == "" {
		return nil, NewValidationError("proctor_session_id", "exam requires an active proctoring session", nil)
	}

	attempt, resumed, err := s.findOrCreate(ctx, exam, studentID)
	if err != nil {
		return nil, err
	}

	// A resumed attempt may have silently run out of time while the
	// student was away. Resolve it before handing it back, then see
	// whether another attempt is allowed.
	if resumed {
		expired, expireErr := s.expireIfStale(ctx, exam, attempt, now)
		if expireErr != nil {
			return nil, expireErr
		}
		if expired {
			attempt, resumed, err = s.findOrCreate(ctx, exam, studentID)
			if err != nil {
				return nil, err
			}
		}
	}

	if !resumed {
		s.publishStarted(ctx, attempt)
	}

	s.logger.InfoContext(ctx, "Exam attempt ready",
		"attempt_id", attempt.ID,
		"attempt_number", attempt.AttemptNumber,
		"resumed", resumed)

	return s.buildAttemptResponse(attempt, exam, studentID, resumed)
}

// findOrCreate builds the per-attempt section snapshot and delegates to the
// store. The shuffle seed depends on the prospective ordinal, so the
// snapshot is built for completedCount+1; when the store instead returns an
// existing in-progress attempt, that attempt's own frozen snapshot wins.
func (s *attemptService) findOrCreate(ctx context.Context, exam *models.Exam, studentID string) (*models.ExamAttempt, bool, error) {
	completed, err := s.repo.Attempt().CountCompleted(ctx, exam.ID, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count attempts: %w", err)
	}

	sections, err := structure.BuildForAttempt(exam, studentID, completed+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build exam structure: %w", err)
	}
	if len(sections) == 0 {
		return nil, false, ErrStructureEmpty
	}

	attempt, err := s.repo.Attempt().FindOrCreate(ctx, exam, sections, studentID)
	if err != nil {
		if errors.Is(err, repositories.ErrAttemptLimitExceeded) {
			return nil, false, ErrAttemptLimitExceeded
		}
		return nil, false, fmt.Errorf("failed to find or create attempt: %w", err)
	}

	resumed := attempt.AttemptNumber != completed+1 || attempt.LastSavedAt != nil
	return attempt, resumed, nil
}

// expireIfStale force-completes an in-progress attempt whose total time ran
// out while nobody was watching. Expiry is an expected transition, not a
// failure.
func (s *attemptService) expireIfStale(ctx context.Context, exam *models.Exam, attempt *models.ExamAttempt, now time.Time) (bool, error) {
	sections, err := attempt.SectionList()
	if err != nil {
		return false, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	if !clock.Expired(sections, attempt.StartedAt, now) {
		return false, nil
	}

	s.logger.InfoContext(ctx, "Expiring stale attempt",
		"attempt_id", attempt.ID,
		"started_at", attempt.StartedAt)

	answers, err := attempt.AnswerMap()
	if err != nil {
		return false, fmt.Errorf("failed to decode attempt answers: %w", err)
	}

	breakdown := scoring.Score(sections, answers, scoringConfig(exam))
	timeUsed := int(clock.TotalLimit(sections).Minutes())
	completed, err := s.repo.Attempt().Complete(ctx, attempt.ID, answers, breakdown, timeUsed, models.EndReasonTimeout)
	if err != nil && !errors.Is(err, repositories.ErrAlreadyCompleted) {
		return false, fmt.Errorf("failed to expire attempt: %w", err)
	}

	s.publishCompleted(ctx, completed, breakdown)
	return true, nil
}

// ===== READ OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "read")
	if err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return s.buildAttemptResponse(attempt, exam, userID, true)
}

func (s *attemptService) TimeRemaining(ctx context.Context, attemptID uint, studentID string) (*TimeRemainingResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "get_time_remaining")
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptCompleted {
		return &TimeRemainingResponse{Expired: true}, nil
	}

	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	snap := clock.Remaining(sections, attempt.CurrentSection, attempt.StartedAt, time.Now())
	return timeRemainingResponse(snap), nil
}

func (s *attemptService) ListByExam(ctx context.Context, examID uint, userID string) ([]*AttemptResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if exam.CreatedBy != userID {
		return nil, NewPermissionError(userID, examID, "exam", "view_attempts", "not the exam owner")
	}

	attempts, err := s.repo.Attempt().ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp, err := s.buildAttemptResponse(attempt, exam, userID, true)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// ===== PROGRESS =====

func (s *attemptService) SaveProgress(ctx context.Context, attemptID uint, req *SaveProgressRequest, studentID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "save_progress")
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptCompleted {
		return nil, ErrAttemptAlreadySubmitted
	}

	exam, err := s.repo.Exam().GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}

	now := time.Now()
	update := repositories.ProgressUpdate{
		Answers: answerMapFromPayload(req.Answers, now),
		SavedAt: now,
	}
	update.CurrentSection, update.CurrentQuestion = clampNavigation(
		req.CurrentSection, req.CurrentQuestion, attempt, sections, exam.AllowBackNavigation)

	if err := s.repo.Attempt().SaveProgress(ctx, attemptID, update); err != nil {
		if errors.Is(err, repositories.ErrAlreadyCompleted) {
			return nil, ErrAttemptAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	refreshed, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attempt: %w", err)
	}
	return s.buildAttemptResponse(refreshed, exam, studentID, true)
}

// ===== SUBMISSION =====

func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.InfoContext(ctx, "Submitting exam attempt",
		"attempt_id", attemptID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	// A second submission is a success returning the existing result — the
	// user-submit and timer-submit triggers race by design.
	if attempt.Status == models.AttemptCompleted {
		return s.buildAttemptResponse(attempt, exam, studentID, true)
	}

	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}

	now := time.Now()
	answers.Merge(answerMapFromPayload(req.Answers, now))

	endReason := models.EndReasonSubmitted
	if clock.Expired(sections, attempt.StartedAt, now) {
		endReason = models.EndReasonTimeout
	}
	timeUsed := int(now.Sub(attempt.StartedAt).Minutes())
	if limit := int(clock.TotalLimit(sections).Minutes()); timeUsed > limit {
		timeUsed = limit
	}

	breakdown := scoring.Score(sections, answers, scoringConfig(exam))

	completed, err := s.repo.Attempt().Complete(ctx, attemptID, answers, breakdown, timeUsed, endReason)
	if err != nil && !errors.Is(err, repositories.ErrAlreadyCompleted) {
		// The attempt stays in progress with every answer intact; the
		// student retries.
		return nil, fmt.Errorf("failed to complete attempt: %w", err)
	}
	if completed == nil {
		completed = attempt
	}

	s.publishCompleted(ctx, completed, breakdown)

	s.logger.InfoContext(ctx, "Exam attempt submitted",
		"attempt_id", attemptID,
		"end_reason", endReason,
		"percentage", breakdown.Percentage,
		"pending", breakdown.PendingQuestions)

	return s.buildAttemptResponse(completed, exam, studentID, true)
}
