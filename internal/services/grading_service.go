package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/scoring"
	"github.com/ccingram94/galileo-sub000/internal/validator"
	"github.com/xuri/excelize/v2"
)

type gradingService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewGradingService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) GradingService {
	return &gradingService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== MANUAL GRADING =====

func (s *gradingService) GradeSubPart(ctx context.Context, attemptID uint, req *GradeSubPartRequest, graderID string) (*AttemptResponse, error) {
	s.logger.InfoContext(ctx, "Grading free-response sub-part",
		"attempt_id", attemptID,
		"section", req.SectionIndex,
		"question", req.QuestionIndex,
		"grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status != models.AttemptCompleted {
		return nil, NewValidationError("status", "attempt must be submitted before grading", attempt.Status)
	}

	exam, err := s.repo.Exam().GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if exam.CreatedBy != graderID {
		return nil, NewPermissionError(graderID, attemptID, "attempt", "grade", "not the exam owner")
	}

	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	question, err := findQuestion(sections, req.SectionIndex, req.QuestionIndex)
	if err != nil {
		return nil, err
	}
	if question.Type != models.FreeResponse {
		return nil, NewValidationError("question_index", "only free-response questions take manual grades", question.Type)
	}
	maxPoints, err := subPartMax(question, req.PartIndex, req.SubPartIndex)
	if err != nil {
		return nil, err
	}
	if req.Points > maxPoints {
		return nil, NewValidationError("points", fmt.Sprintf("must be at most %g", maxPoints), req.Points)
	}

	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}

	key := models.AnswerKey(req.SectionIndex, req.QuestionIndex)
	answer := answers[key]
	if answer.Scores == nil {
		answer.Scores = make(map[string]float64)
	}
	answer.Scores[models.SubPartKey(req.PartIndex, req.SubPartIndex)] = req.Points
	answer.UpdatedAt = time.Now()
	answers[key] = answer

	breakdown := scoring.Reaggregate(sections, answers, scoringConfig(exam))

	if err := s.repo.Attempt().UpdateScore(ctx, attemptID, answers, breakdown); err != nil {
		return nil, fmt.Errorf("failed to update score: %w", err)
	}

	s.publishGraded(ctx, attempt, graderID, breakdown)

	s.logger.InfoContext(ctx, "Sub-part graded",
		"attempt_id", attemptID,
		"points", req.Points,
		"percentage", breakdown.Percentage,
		"pending", breakdown.PendingQuestions)

	refreshed, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attempt: %w", err)
	}
	return buildGradedResponse(refreshed, breakdown)
}

func findQuestion(sections []models.Section, sectionIdx, questionIdx int) (*models.Question, error) {
	if sectionIdx < 0 || sectionIdx >= len(sections) {
		return nil, NewValidationError("section_index", "out of range", sectionIdx)
	}
	questions := sections[sectionIdx].Questions
	if questionIdx < 0 || questionIdx >= len(questions) {
		return nil, NewValidationError("question_index", "out of range", questionIdx)
	}
	return &questions[questionIdx], nil
}

// subPartMax resolves the point ceiling for one gradable slot. Partless
// questions expose a single (0,0) slot worth the question maximum.
func subPartMax(question *models.Question, partIdx, subIdx int) (float64, error) {
	if len(question.Parts) == 0 {
		if partIdx != 0 || subIdx != 0 {
			return 0, NewValidationError("part_index", "question has no parts", partIdx)
		}
		return float64(question.TotalPoints()), nil
	}
	if partIdx < 0 || partIdx >= len(question.Parts) {
		return 0, NewValidationError("part_index", "out of range", partIdx)
	}
	subs := question.Parts[partIdx].SubParts
	if subIdx < 0 || subIdx >= len(subs) {
		return 0, NewValidationError("sub_part_index", "out of range", subIdx)
	}
	return float64(subs[subIdx].Points), nil
}

func buildGradedResponse(attempt *models.ExamAttempt, breakdown *models.ScoreBreakdown) (*AttemptResponse, error) {
	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}
	return &AttemptResponse{
		ExamAttempt:   attempt,
		Sections:      sections,
		AnswerEntries: answers,
		Breakdown:     breakdown,
	}, nil
}

func (s *gradingService) publishGraded(ctx context.Context, attempt *models.ExamAttempt, graderID string, breakdown *models.ScoreBreakdown) {
	if s.publisher == nil {
		return
	}
	evt := events.NewEvent(events.EventAttemptGraded, &events.AttemptGradedEvent{
		AttemptID:  attempt.ID,
		ExamID:     attempt.ExamID,
		StudentID:  attempt.StudentID,
		GraderID:   graderID,
		Percentage: breakdown.Percentage,
		Passed:     breakdown.Passed,
		Pending:    breakdown.PendingQuestions,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish grading event",
			"error", err,
			"attempt_id", attempt.ID)
	}
}

// ===== RESULTS EXPORT =====

var exportHeader = []string{
	"Student ID", "Attempt", "Status", "Started At", "Completed At",
	"End Reason", "Time Used (min)", "Points Earned", "Points Possible",
	"Percentage", "Passed", "Pending Questions",
}

func (s *gradingService) ExportResults(ctx context.Context, examID uint, userID string) (*excelize.File, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if exam.CreatedBy != userID {
		return nil, NewPermissionError(userID, examID, "exam", "export_results", "not the exam owner")
	}

	attempts, err := s.repo.Attempt().ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Results"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	for row, attempt := range attempts {
		values, err := exportRow(attempt)
		if err != nil {
			return nil, err
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	s.logger.InfoContext(ctx, "Exported exam results",
		"exam_id", examID,
		"attempts", len(attempts))
	return f, nil
}

func exportRow(attempt *models.ExamAttempt) ([]interface{}, error) {
	values := []interface{}{
		attempt.StudentID,
		attempt.AttemptNumber,
		string(attempt.Status),
		attempt.StartedAt.Format(time.RFC3339),
		"", "", attempt.TimeUsedMinutes,
		"", "", "", "", "",
	}
	if attempt.CompletedAt != nil {
		values[4] = attempt.CompletedAt.Format(time.RFC3339)
	}
	if attempt.EndReason != nil {
		values[5] = *attempt.EndReason
	}

	breakdown, err := attempt.ScoreBreakdown()
	if err != nil {
		return nil, fmt.Errorf("failed to decode score for attempt %d: %w", attempt.ID, err)
	}
	if breakdown != nil {
		values[7] = breakdown.Total.PointsEarned
		values[8] = breakdown.Total.PointsPossible
		values[9] = breakdown.Percentage
		values[10] = breakdown.Passed
		values[11] = breakdown.PendingQuestions
	}
	return values, nil
}
