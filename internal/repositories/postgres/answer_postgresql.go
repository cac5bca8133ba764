package postgres

import (
	"context"
	"time"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

// Upsert writes the answer with last-write-wins semantics on the
// (attempt_id, question_id) unique index. No history is retained.
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, answer *models.StudentAnswer) error {
	answer.UpdatedAt = time.Now()

	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer_data", "submitted_at", "updated_at",
			}),
		}).
		Create(answer).Error
}

func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StudentAnswer, error) {
	var answers []*models.StudentAnswer
	if err := a.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.StudentAnswer, error) {
	var answer models.StudentAnswer
	if err := a.db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}
