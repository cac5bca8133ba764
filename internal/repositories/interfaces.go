package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/brightclass/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type QuizFilters struct {
	Status    *models.QuizStatus `json:"status"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	QuizID    *uint                 `json:"quiz_id"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "started_at", "completed_at"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED STATISTICS STRUCTS =====

type AttemptStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	CompletedAttempts int     `json:"completed_attempts"`
	AverageScore      float64 `json:"average_score"`
	AveragePercentage float64 `json:"average_percentage"`
}

// ===== REPOSITORY INTERFACES =====

// QuizRepository owns the quiz definition store.
type QuizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters QuizFilters) ([]*models.Quiz, int64, error)
	UpdateStatus(ctx context.Context, id uint, status models.QuizStatus) error
	AddQuestions(ctx context.Context, quizID uint, questions []*models.Question) error
}

// AttemptRepository owns the attempt ledger rows.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error)
	GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error)
	GetActiveAttempt(ctx context.Context, studentID string, quizID uint) (*models.QuizAttempt, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	// Complete performs the status check-and-set: only the caller that
	// observes status=in_progress writes the terminal state. Returns
	// false when the attempt was already completed by another path.
	Complete(ctx context.Context, id uint, score, maxScore int, reason models.AttemptEndReason, completedAt time.Time) (bool, error)

	GetStats(ctx context.Context, quizID uint) (*AttemptStats, error)
}

// AnswerRepository owns recorded answers; at most one row per
// (attempt, question), overwrite on conflict.
type AnswerRepository interface {
	Upsert(ctx context.Context, answer *models.StudentAnswer) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StudentAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.StudentAnswer, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

// Repository aggregates all repositories behind one handle.
type Repository interface {
	Quiz() QuizRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	User() UserRepository

	// WithTransaction runs fn against a repository bound to one
	// database transaction.
	WithTransaction(ctx context.Context, fn func(Repository) error) error
}

// IsNotFoundError checks whether err represents a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
