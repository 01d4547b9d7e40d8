package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/clock"
	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/scoring"
)

// getOwnedAttempt loads an attempt and verifies the caller owns it. The
// exam author also passes, for review and grading flows.
func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != userID {
		exam, examErr := s.repo.Exam().GetByID(ctx, attempt.ExamID)
		if examErr != nil || exam.CreatedBy != userID {
			return nil, NewPermissionError(userID, attemptID, "attempt", action, "not owned by user")
		}
	}
	return attempt, nil
}

func checkAvailability(exam *models.Exam, now time.Time) error {
	if exam.AvailableFrom != nil && now.Before(*exam.AvailableFrom) {
		return NewNotYetAvailableError(exam.ID, *exam.AvailableFrom)
	}
	if exam.AvailableUntil != nil && now.After(*exam.AvailableUntil) {
		return NewExamClosedError(exam.ID, *exam.AvailableUntil)
	}
	return nil
}

func scoringConfig(exam *models.Exam) scoring.Config {
	return scoring.Config{
		PassingScore: exam.PassingScore,
		MCWeight:     exam.MCWeight,
		FRWeight:     exam.FRWeight,
	}
}

// answerMapFromPayload converts client answers into store entries. Client
// timestamps are honored when present so a delayed retry cannot clobber a
// newer answer; absent ones get the server receive time.
func answerMapFromPayload(payload []AnswerPayload, now time.Time) models.AnswerMap {
	if len(payload) == 0 {
		return nil
	}
	answers := make(models.AnswerMap, len(payload))
	for _, p := range payload {
		updatedAt := now
		if p.UpdatedAt != nil {
			updatedAt = *p.UpdatedAt
		}
		answers[models.AnswerKey(p.SectionIndex, p.QuestionIndex)] = models.Answer{
			Selected:  p.Selected,
			Responses: p.Responses,
			UpdatedAt: updatedAt,
		}
	}
	return answers
}

// clampNavigation bounds the requested pointer to the section snapshot and
// drops backward section moves when the exam forbids them. Out-of-policy
// moves degrade to no-ops, never errors.
func clampNavigation(section, question *int, attempt *models.ExamAttempt, sections []models.Section, allowBack bool) (*int, *int) {
	target := attempt.CurrentSection
	if section != nil {
		idx := *section
		if idx > len(sections)-1 {
			idx = len(sections) - 1
		}
		if idx < 0 {
			idx = 0
		}
		if idx < attempt.CurrentSection && !allowBack {
			idx = attempt.CurrentSection
		}
		section = &idx
		target = idx
	}

	// The question pointer is bounded by whichever section the save lands
	// in, whether or not a section index was sent along with it.
	if question != nil && target >= 0 && target < len(sections) {
		q := *question
		if limit := len(sections[target].Questions) - 1; q > limit {
			q = limit
		}
		if q < 0 {
			q = 0
		}
		question = &q
	}
	return section, question
}

// buildAttemptResponse assembles the client view. While the attempt is in
// progress the section snapshot is stripped of answer keys; after
// completion they stay hidden unless the exam shows correct answers.
func (s *attemptService) buildAttemptResponse(attempt *models.ExamAttempt, exam *models.Exam, userID string, resumed bool) (*AttemptResponse, error) {
	sections, err := attempt.SectionList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt sections: %w", err)
	}
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}

	resp := &AttemptResponse{
		ExamAttempt:   attempt,
		AnswerEntries: answers,
		Resumed:       resumed,
	}

	if attempt.Status == models.AttemptInProgress {
		resp.Sections = sanitizeSections(sections, false)
		resp.CanSubmit = true
		resp.TimeRemaining = timeRemainingResponse(
			clock.Remaining(sections, attempt.CurrentSection, attempt.StartedAt, time.Now()))
		return resp, nil
	}

	isOwner := attempt.StudentID == userID
	if breakdown, err := attempt.ScoreBreakdown(); err == nil {
		resp.Breakdown = breakdown
	}

	// With review disabled a student sees only the score, not the paper.
	if isOwner && !exam.AllowReview {
		resp.AnswerEntries = nil
		return resp, nil
	}

	showKey := !isOwner || exam.ShowCorrectAnswers
	resp.Sections = sanitizeSections(sections, showKey)
	return resp, nil
}

// sanitizeSections deep-copies the snapshot, withholding the grading key
// from the student-facing copy.
func sanitizeSections(sections []models.Section, showKey bool) []models.Section {
	out := make([]models.Section, len(sections))
	for i, section := range sections {
		out[i] = section
		out[i].Questions = make([]models.Question, len(section.Questions))
		for j, q := range section.Questions {
			out[i].Questions[j] = q
			if !showKey {
				out[i].Questions[j].CorrectOption = -1
				out[i].Questions[j].Explanation = nil
				out[i].Questions[j].Parts = stripRubrics(q.Parts)
			}
		}
	}
	return out
}

func stripRubrics(parts []models.Part) []models.Part {
	out := make([]models.Part, len(parts))
	for i, part := range parts {
		out[i] = part
		out[i].SubParts = make([]models.SubPart, len(part.SubParts))
		for j, sub := range part.SubParts {
			out[i].SubParts[j] = sub
			out[i].SubParts[j].Rubric = nil
		}
	}
	return out
}

// ===== EVENTS =====

func (s *attemptService) publishStarted(ctx context.Context, attempt *models.ExamAttempt) {
	if s.publisher == nil {
		return
	}
	evt := events.NewEvent(events.EventAttemptStarted, &events.AttemptStartedEvent{
		AttemptID:     attempt.ID,
		ExamID:        attempt.ExamID,
		StudentID:     attempt.StudentID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish attempt started event",
			"error", err,
			"attempt_id", attempt.ID)
	}
}

func (s *attemptService) publishCompleted(ctx context.Context, attempt *models.ExamAttempt, breakdown *models.ScoreBreakdown) {
	if s.publisher == nil || attempt == nil {
		return
	}
	eventType := events.EventAttemptSubmitted
	if attempt.EndReason != nil && *attempt.EndReason == models.EndReasonTimeout {
		eventType = events.EventAttemptExpired
	}
	evt := events.NewEvent(eventType, events.CompletedEventFrom(attempt, breakdown))
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish attempt completed event",
			"error", err,
			"attempt_id", attempt.ID)
	}
}
