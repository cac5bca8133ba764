package postgres

import (
	"context"

	"github.com/brightclass/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type gormRepository struct {
	db      *gorm.DB
	quiz    repositories.QuizRepository
	attempt repositories.AttemptRepository
	answer  repositories.AnswerRepository
	user    repositories.UserRepository
}

// NewRepository builds the aggregate repository backed by one gorm handle.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &gormRepository{
		db:      db,
		quiz:    NewQuizPostgreSQL(db),
		attempt: NewAttemptPostgreSQL(db),
		answer:  NewAnswerPostgreSQL(db),
		user:    NewUserPostgreSQL(db),
	}
}

func (r *gormRepository) Quiz() repositories.QuizRepository {
	return r.quiz
}

func (r *gormRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

func (r *gormRepository) Answer() repositories.AnswerRepository {
	return r.answer
}

func (r *gormRepository) User() repositories.UserRepository {
	return r.user
}

func (r *gormRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
