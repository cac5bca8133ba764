package models

import (
	"time"

	"gorm.io/gorm"
)

type QuizStatus string

const (
	QuizActive   QuizStatus = "Active"
	QuizInactive QuizStatus = "Inactive"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

type Quiz struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Title            string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description      *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	TimeLimitMinutes int        `json:"time_limit_minutes" gorm:"not null" validate:"required,min=1,max=300"`
	Status           QuizStatus `json:"status" gorm:"default:Active;index" validate:"omitempty,oneof=Active Inactive"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question `json:"questions" gorm:"foreignKey:QuizID"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
	TotalPoints    int `json:"total_points" gorm:"-"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// IsAvailable reports whether students may start or resume attempts
// against this quiz.
func (q *Quiz) IsAvailable() bool {
	return q.Status == QuizActive
}

// MaxScore sums the points of every question in the quiz.
func (q *Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// QuestionByID returns the question with the given id, or nil if the
// quiz has no such question.
func (q *Quiz) QuestionByID(questionID uint) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return &q.Questions[i]
		}
	}
	return nil
}

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	QuizID uint         `json:"quiz_id" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"not null;type:text" validate:"required"`
	Type   QuestionType `json:"type" gorm:"not null" validate:"required,question_type"`
	Points int          `json:"points" gorm:"not null;default:1" validate:"required,min=1,max=100"`
	Order  int          `json:"order" gorm:"not null;default:0"`

	// Correct answer for true_false and short_answer questions.
	// Multiple choice correctness lives on the options.
	CorrectAnswer *string `json:"-" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Options []QuestionOption `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOptionIDs returns the ids of every option marked correct, in
// option order.
func (q *Question) CorrectOptionIDs() []uint {
	var ids []uint
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// HasOption reports whether the given option id belongs to this question.
func (q *Question) HasOption(optionID uint) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null;type:text" validate:"required"`
	IsCorrect  bool   `json:"-" gorm:"not null;default:false"`
	Order      int    `json:"order" gorm:"not null;default:0"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
