package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ccingram94/galileo-sub000/internal/events"
	"github.com/ccingram94/galileo-sub000/internal/repositories"
	"github.com/ccingram94/galileo-sub000/internal/validator"
)

// ServiceManager hands out the service instances behind one handle.
type ServiceManager interface {
	Exam() ExamService
	Attempt() AttemptService
	Grading() GradingService

	HealthCheck(ctx context.Context) error
	Shutdown() error
}

type serviceManager struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator

	examService    ExamService
	attemptService AttemptService
	gradingService GradingService

	mu sync.Mutex
}

func NewServiceManager(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) ServiceManager {
	return &serviceManager{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

func (m *serviceManager) Exam() ExamService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.examService == nil {
		m.examService = NewExamService(m.repo, m.logger, m.validator)
	}
	return m.examService
}

func (m *serviceManager) Attempt() AttemptService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attemptService == nil {
		m.attemptService = NewAttemptService(m.repo, m.publisher, m.logger, m.validator)
	}
	return m.attemptService
}

func (m *serviceManager) Grading() GradingService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gradingService == nil {
		m.gradingService = NewGradingService(m.repo, m.publisher, m.logger, m.validator)
	}
	return m.gradingService
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

func (m *serviceManager) Shutdown() error {
	m.logger.Info("Shutting down services")
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			return err
		}
	}
	return nil
}
