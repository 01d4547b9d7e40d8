// Package memory implements the repository contract in process memory.
// It backs dev mode without a database and the engine/service tests; the
// semantics (attempt reuse, limit checks, idempotent completion, answer
// merging) match the postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
)

type Repository struct {
	mu       sync.Mutex
	exams    map[uint]*models.Exam
	attempts map[uint]*models.ExamAttempt
	nextExam uint
	nextID   uint
}

func NewRepository() *Repository {
	return &Repository{
		exams:    make(map[uint]*models.Exam),
		attempts: make(map[uint]*models.ExamAttempt),
	}
}

func (r *Repository) Exam() repositories.ExamStore       { return (*examStore)(r) }
func (r *Repository) Attempt() repositories.AttemptStore { return (*attemptStore)(r) }
func (r *Repository) Ping(ctx context.Context) error     { return nil }
func (r *Repository) Close() error                       { return nil }

type examStore Repository

func (s *examStore) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam, ok := s.exams[id]
	if !ok {
		return nil, repositories.ErrExamNotFound
	}
	copied := *exam
	return &copied, nil
}

func (s *examStore) Create(ctx context.Context, exam *models.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam.ID == 0 {
		s.nextExam++
		exam.ID = s.nextExam
	}
	copied := *exam
	s.exams[exam.ID] = &copied
	return nil
}

type attemptStore Repository

func (s *attemptStore) FindOrCreate(ctx context.Context, exam *models.Exam, sections []models.Section, studentID string) (*models.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for _, a := range s.attempts {
		if a.ExamID != exam.ID || a.StudentID != studentID {
			continue
		}
		if a.Status == models.AttemptInProgress {
			return cloneAttempt(a), nil
		}
		completed++
	}
	if completed >= exam.MaxAttempts {
		return nil, repositories.ErrAttemptLimitExceeded
	}

	s.nextID++
	attempt := &models.ExamAttempt{
		ID:            s.nextID,
		ExamID:        exam.ID,
		StudentID:     studentID,
		AttemptNumber: completed + 1,
		Status:        models.AttemptInProgress,
		StartedAt:     time.Now(),
	}
	if err := attempt.SetSectionList(sections); err != nil {
		return nil, err
	}
	if err := attempt.SetAnswerMap(models.AnswerMap{}); err != nil {
		return nil, err
	}
	s.attempts[attempt.ID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *attemptStore) GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, repositories.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *attemptStore) SaveProgress(ctx context.Context, attemptID uint, update repositories.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return repositories.ErrAttemptNotFound
	}
	if attempt.Status == models.AttemptCompleted {
		return repositories.ErrAlreadyCompleted
	}

	if len(update.Answers) > 0 {
		stored, err := attempt.AnswerMap()
		if err != nil {
			return err
		}
		stored.Merge(update.Answers)
		if err := attempt.SetAnswerMap(stored); err != nil {
			return err
		}
	}
	if update.CurrentSection != nil {
		attempt.CurrentSection = *update.CurrentSection
	}
	if update.CurrentQuestion != nil {
		attempt.CurrentQuestion = *update.CurrentQuestion
	}
	savedAt := update.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	attempt.LastSavedAt = &savedAt
	return nil
}

func (s *attemptStore) Complete(ctx context.Context, attemptID uint, finalAnswers models.AnswerMap, breakdown *models.ScoreBreakdown, timeUsedMinutes int, endReason string) (*models.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil, repositories.ErrAttemptNotFound
	}
	if attempt.Status == models.AttemptCompleted {
		return cloneAttempt(attempt), repositories.ErrAlreadyCompleted
	}

	if len(finalAnswers) > 0 {
		stored, err := attempt.AnswerMap()
		if err != nil {
			return nil, err
		}
		stored.Merge(finalAnswers)
		if err := attempt.SetAnswerMap(stored); err != nil {
			return nil, err
		}
	}
	if err := attempt.SetScoreBreakdown(breakdown); err != nil {
		return nil, err
	}
	now := time.Now()
	attempt.Status = models.AttemptCompleted
	attempt.CompletedAt = &now
	attempt.TimeUsedMinutes = timeUsedMinutes
	attempt.EndReason = &endReason
	return cloneAttempt(attempt), nil
}

func (s *attemptStore) UpdateScore(ctx context.Context, attemptID uint, answers models.AnswerMap, breakdown *models.ScoreBreakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return repositories.ErrAttemptNotFound
	}
	if err := attempt.SetAnswerMap(answers); err != nil {
		return err
	}
	return attempt.SetScoreBreakdown(breakdown)
}

func (s *attemptStore) CountCompleted(ctx context.Context, examID uint, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == models.AttemptCompleted {
			count++
		}
	}
	return count, nil
}

func (s *attemptStore) ListByExam(ctx context.Context, examID uint) ([]*models.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ExamAttempt
	for _, a := range s.attempts {
		if a.ExamID == examID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func cloneAttempt(a *models.ExamAttempt) *models.ExamAttempt {
	copied := *a
	copied.Sections = append([]byte(nil), a.Sections...)
	copied.Answers = append([]byte(nil), a.Answers...)
	copied.Score = append([]byte(nil), a.Score...)
	return &copied
}
