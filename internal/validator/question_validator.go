package validator

import (
	"fmt"
	"strings"

	"github.com/brightclass/quiz-service/internal/models"
)

// QuestionValidator handles question-specific validation
type QuestionValidator struct{}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion validates a complete question object, including the
// per-type content invariants.
func (v *QuestionValidator) ValidateQuestion(question *models.Question) error {
	if strings.TrimSpace(question.Text) == "" {
		return fmt.Errorf("question text is required")
	}

	if question.Points < 1 || question.Points > 100 {
		return fmt.Errorf("question points must be between 1 and 100")
	}

	switch question.Type {
	case models.MultipleChoice:
		return v.validateMultipleChoice(question)
	case models.TrueFalse:
		return v.validateTrueFalse(question)
	case models.ShortAnswer:
		return v.validateShortAnswer(question)
	default:
		return fmt.Errorf("unsupported question type: %s", question.Type)
	}
}

// ValidateBatch validates multiple questions
func (v *QuestionValidator) ValidateBatch(questions []*models.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("question batch cannot be empty")
	}

	for i, question := range questions {
		if err := v.ValidateQuestion(question); err != nil {
			return fmt.Errorf("validation failed for question %d: %w", i+1, err)
		}
	}

	return nil
}

func (v *QuestionValidator) validateMultipleChoice(question *models.Question) error {
	if len(question.Options) < 2 {
		return fmt.Errorf("multiple choice question must have at least 2 options")
	}

	correctCount := 0
	for i, opt := range question.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return fmt.Errorf("option %d text is required", i+1)
		}
		if opt.IsCorrect {
			correctCount++
		}
	}

	if correctCount == 0 {
		return fmt.Errorf("multiple choice question must have at least 1 correct option")
	}

	return nil
}

func (v *QuestionValidator) validateTrueFalse(question *models.Question) error {
	if question.CorrectAnswer == nil {
		return fmt.Errorf("true/false question must have a correct answer")
	}

	answer := strings.ToLower(strings.TrimSpace(*question.CorrectAnswer))
	if answer != "true" && answer != "false" {
		return fmt.Errorf("true/false correct answer must be 'true' or 'false'")
	}

	return nil
}

func (v *QuestionValidator) validateShortAnswer(question *models.Question) error {
	if question.CorrectAnswer == nil || strings.TrimSpace(*question.CorrectAnswer) == "" {
		return fmt.Errorf("short answer question must have a correct answer")
	}

	return nil
}
