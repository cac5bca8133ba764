package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

type AttemptEndReason string

const (
	AttemptEndReasonSubmit  AttemptEndReason = "submit"
	AttemptEndReasonTimeout AttemptEndReason = "timeout"
)

type QuizAttempt struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	QuizID    uint          `json:"quiz_id" gorm:"not null;index:idx_attempts_quiz_student"`
	StudentID string        `json:"student_id" gorm:"not null;size:255;index:idx_attempts_quiz_student"`
	Status    AttemptStatus `json:"status" gorm:"not null;default:in_progress;index"`

	// StartedAt is set once at creation and never rewritten; remaining
	// time is always derived from it.
	StartedAt   time.Time         `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time        `json:"completed_at"`
	EndReason   *AttemptEndReason `json:"end_reason"`

	// Scoring, populated on completion only.
	Score    *int `json:"score"`
	MaxScore *int `json:"max_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz            `json:"quiz,omitempty" gorm:"foreignKey:QuizID"`
	Answers []StudentAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// IsClosed reports whether the attempt has reached its terminal state.
func (a *QuizAttempt) IsClosed() bool {
	return a.Status == AttemptCompleted
}

// Deadline returns the wall-clock instant at which the attempt expires.
func (a *QuizAttempt) Deadline(timeLimitMinutes int) time.Time {
	return a.StartedAt.Add(time.Duration(timeLimitMinutes) * time.Minute)
}

// AnswerFor returns the recorded answer for the given question, or nil.
func (a *QuizAttempt) AnswerFor(questionID uint) *StudentAnswer {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

// StudentAnswer is one recorded answer within an attempt. At most one
// row exists per (attempt, question); resubmission overwrites.
type StudentAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`

	// AnswerData holds the typed payload (AnswerPayload) as JSONB.
	AnswerData datatypes.JSON `json:"answer_data" gorm:"type:jsonb"`

	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

// AnswerPayload is the wire and storage shape of a single answer.
// SelectedOptionIDs is used for multiple choice questions, TextAnswer
// for true/false and short answer questions.
type AnswerPayload struct {
	SelectedOptionIDs []uint `json:"selected_option_ids,omitempty"`
	TextAnswer        string `json:"text_answer,omitempty"`
}

// GradedResult is the completion output of an attempt.
type GradedResult struct {
	AttemptID  uint    `json:"attempt_id"`
	Score      int     `json:"score"`
	MaxScore   int     `json:"max_score"`
	Percentage float64 `json:"percentage"`
}
