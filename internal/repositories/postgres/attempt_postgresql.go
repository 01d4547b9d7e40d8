package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ccingram94/galileo-sub000/internal/cache"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptStore {
	return &AttemptPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) FindOrCreate(ctx context.Context, exam *models.Exam, sections []models.Section, studentID string) (*models.ExamAttempt, error) {
	var attempt *models.ExamAttempt

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock serializes starts against an existing in-progress
		// attempt. It cannot stop two starts that both find nothing: that
		// race is settled by the unique index on
		// (exam_id, student_id, attempt_number), which fails the second
		// insert.
		var existing models.ExamAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("exam_id = ? AND student_id = ? AND status = ?", exam.ID, studentID, models.AttemptInProgress).
			First(&existing).Error
		if err == nil {
			attempt = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up active attempt: %w", err)
		}

		var completed int64
		if err := tx.Model(&models.ExamAttempt{}).
			Where("exam_id = ? AND student_id = ? AND status = ?", exam.ID, studentID, models.AttemptCompleted).
			Count(&completed).Error; err != nil {
			return fmt.Errorf("failed to count completed attempts: %w", err)
		}
		if int(completed) >= exam.MaxAttempts {
			return repositories.ErrAttemptLimitExceeded
		}

		created := &models.ExamAttempt{
			ExamID:        exam.ID,
			StudentID:     studentID,
			AttemptNumber: int(completed) + 1,
			Status:        models.AttemptInProgress,
			StartedAt:     time.Now(),
		}
		if err := created.SetSectionList(sections); err != nil {
			return fmt.Errorf("failed to encode section snapshot: %w", err)
		}
		if err := created.SetAnswerMap(models.AnswerMap{}); err != nil {
			return fmt.Errorf("failed to encode answer map: %w", err)
		}
		if err := tx.Create(created).Error; err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		attempt = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var attempt models.ExamAttempt

	err := a.cacheManager.Attempt.CacheOrExecute(ctx, cacheKey, &attempt, cache.AttemptCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.ExamAttempt
		if err := a.db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrAttemptNotFound
			}
			return nil, fmt.Errorf("failed to get attempt: %w", err)
		}
		return &dbAttempt, nil
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) SaveProgress(ctx context.Context, attemptID uint, update repositories.ProgressUpdate) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, attemptID)
		if err != nil {
			return err
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
				return fmt.Errorf("failed to encode answer map: %w", err)
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

		if err := tx.Save(attempt).Error; err != nil {
			return fmt.Errorf("failed to save attempt progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.invalidate(ctx, attemptID)
	return nil
}

func (a *AttemptPostgreSQL) Complete(ctx context.Context, attemptID uint, finalAnswers models.AnswerMap, breakdown *models.ScoreBreakdown, timeUsedMinutes int, endReason string) (*models.ExamAttempt, error) {
	var attempt *models.ExamAttempt

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAttempt(tx, attemptID)
		if err != nil {
			return err
		}
		if locked.Status == models.AttemptCompleted {
			attempt = locked
			return repositories.ErrAlreadyCompleted
		}

		if len(finalAnswers) > 0 {
			stored, err := locked.AnswerMap()
			if err != nil {
				return err
			}
			stored.Merge(finalAnswers)
			if err := locked.SetAnswerMap(stored); err != nil {
				return fmt.Errorf("failed to encode answer map: %w", err)
			}
		}
		if err := locked.SetScoreBreakdown(breakdown); err != nil {
			return fmt.Errorf("failed to encode score breakdown: %w", err)
		}

		now := time.Now()
		locked.Status = models.AttemptCompleted
		locked.CompletedAt = &now
		locked.TimeUsedMinutes = timeUsedMinutes
		locked.EndReason = &endReason

		if err := tx.Save(locked).Error; err != nil {
			return fmt.Errorf("failed to complete attempt: %w", err)
		}
		attempt = locked
		return nil
	})
	if err != nil && !errors.Is(err, repositories.ErrAlreadyCompleted) {
		return nil, err
	}

	a.invalidate(ctx, attemptID)
	return attempt, err
}

func (a *AttemptPostgreSQL) UpdateScore(ctx context.Context, attemptID uint, answers models.AnswerMap, breakdown *models.ScoreBreakdown) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, attemptID)
		if err != nil {
			return err
		}
		if err := attempt.SetAnswerMap(answers); err != nil {
			return fmt.Errorf("failed to encode answer map: %w", err)
		}
		if err := attempt.SetScoreBreakdown(breakdown); err != nil {
			return fmt.Errorf("failed to encode score breakdown: %w", err)
		}
		if err := tx.Save(attempt).Error; err != nil {
			return fmt.Errorf("failed to update attempt score: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.invalidate(ctx, attemptID)
	return nil
}

func (a *AttemptPostgreSQL) CountCompleted(ctx context.Context, examID uint, studentID string) (int, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("exam_id = ? AND student_id = ? AND status = ?", examID, studentID, models.AttemptCompleted).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completed attempts: %w", err)
	}
	return int(count), nil
}

func (a *AttemptPostgreSQL) ListByExam(ctx context.Context, examID uint) ([]*models.ExamAttempt, error) {
	var attempts []*models.ExamAttempt
	err := a.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("student_id, attempt_number").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func lockAttempt(tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) invalidate(ctx context.Context, attemptID uint) {
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attemptID)
}
