package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/validator"
)

type examService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewExamService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ExamService {
	return &examService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *examService) Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*ExamResponse, error) {
	s.logger.InfoContext(ctx, "Creating exam",
		"title", req.Title,
		"creator_id", creatorID)

	if errs := s.validator.ValidateExamCreate(req); len(errs) > 0 {
		return nil, fmt.Errorf("validation failed: %w", errs)
	}

	exam, err := req.ToExam(creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode question groups: %w", err)
	}
	if err := s.repo.Exam().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	s.logger.InfoContext(ctx, "Exam created", "exam_id", exam.ID)
	return &ExamResponse{Exam: exam}, nil
}

func (s *examService) GetByID(ctx context.Context, id uint, userID string) (*ExamResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	resp := &ExamResponse{Exam: exam}
	if used, err := s.repo.Attempt().CountCompleted(ctx, id, userID); err == nil {
		resp.AttemptsUsed = used
	}
	return resp, nil
}
