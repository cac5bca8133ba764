package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Preload("Answers").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, studentID string, quizID uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.AttemptInProgress).
		Order("started_at DESC").
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var attempts []*models.QuizAttempt
	var total int64

	// apply filter first
	query := a.db.WithContext(ctx).Model(&models.QuizAttempt{})
	query = a.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.applyPaginationAndSort(query, filters)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// Complete flips the attempt to its terminal state. The WHERE clause on
// status makes this the single authoritative completion path: the first
// writer wins, later callers see RowsAffected == 0.
func (a *AttemptPostgreSQL) Complete(ctx context.Context, id uint, score, maxScore int, reason models.AttemptEndReason, completedAt time.Time) (bool, error) {
	result := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptCompleted,
			"score":        score,
			"max_score":    maxScore,
			"end_reason":   reason,
			"completed_at": completedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (a *AttemptPostgreSQL) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	stats := &repositories.AttemptStats{}

	var total int64
	if err := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ?", quizID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	stats.TotalAttempts = int(total)

	row := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Select("COUNT(*), COALESCE(AVG(score), 0), COALESCE(AVG(CASE WHEN max_score > 0 THEN score * 100.0 / max_score ELSE 0 END), 0)").
		Where("quiz_id = ? AND status = ?", quizID, models.AttemptCompleted).
		Row()

	var completed int64
	if err := row.Scan(&completed, &stats.AverageScore, &stats.AveragePercentage); err != nil {
		return nil, err
	}
	stats.CompletedAttempts = int(completed)

	return stats, nil
}

func (a *AttemptPostgreSQL) applyFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.QuizID != nil {
		query = query.Where("quiz_id = ?", *filters.QuizID)
	}
	return query
}

func (a *AttemptPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "started_at", "completed_at":
	default:
		sortBy = "started_at"
	}

	sortOrder := "DESC"
	if filters.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	// NULLS LAST keeps in-progress attempts out of the way when
	// sorting by completion time.
	query = query.Order(sortBy + " " + sortOrder + " NULLS LAST")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	return query
}
