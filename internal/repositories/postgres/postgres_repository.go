package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ccingram94/galileo-sub000/internal/repositories"
)

// RepositoryConfig wires the backing connections for the postgres stores.
// RedisClient is optional; without it attempt reads skip the cache layer.
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

type repositoryManager struct {
	config  RepositoryConfig
	exam    repositories.ExamStore
	attempt repositories.AttemptStore
}

func NewRepositoryManager(config RepositoryConfig) repositories.Repository {
	return &repositoryManager{
		config:  config,
		exam:    NewExamPostgreSQL(config.DB),
		attempt: NewAttemptPostgreSQL(config.DB, config.RedisClient),
	}
}

func (r *repositoryManager) Exam() repositories.ExamStore {
	return r.exam
}

func (r *repositoryManager) Attempt() repositories.AttemptStore {
	return r.attempt
}

func (r *repositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := r.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *repositoryManager) Close() error {
	sqlDB, err := r.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
