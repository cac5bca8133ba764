package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brightclass/quiz-service/internal/models"
)

// Grader computes the score of an attempt from its recorded answers.
// Grading happens exactly once, at completion; nothing is scored while
// the attempt is in progress.
type Grader struct{}

func NewGrader() *Grader {
	return &Grader{}
}

// Grade applies the correctness rules to every recorded answer and sums
// the points of correct ones. maxScore is the sum of points of all
// questions in the quiz at completion time, whether answered or not.
func (g *Grader) Grade(quiz *models.Quiz, answers []*models.StudentAnswer) (score, maxScore int, err error) {
	maxScore = quiz.MaxScore()

	for _, answer := range answers {
		question := quiz.QuestionByID(answer.QuestionID)
		if question == nil {
			// Answer rows for questions no longer on the quiz carry no
			// points; the question set as of completion time governs.
			continue
		}

		var payload models.AnswerPayload
		if len(answer.AnswerData) > 0 {
			if jsonErr := json.Unmarshal(answer.AnswerData, &payload); jsonErr != nil {
				return 0, 0, fmt.Errorf("failed to decode answer for question %d: %w", answer.QuestionID, jsonErr)
			}
		}

		if g.IsCorrect(question, &payload) {
			score += question.Points
		}
	}

	return score, maxScore, nil
}

// IsCorrect applies the per-type correctness rule:
//   - multiple choice: the selected set must equal the correct-option
//     set exactly; a subset or superset scores zero.
//   - true/false and short answer: case-and-whitespace-normalized
//     string equality against the canonical answer.
func (g *Grader) IsCorrect(question *models.Question, payload *models.AnswerPayload) bool {
	switch question.Type {
	case models.MultipleChoice:
		return equalIDSets(payload.SelectedOptionIDs, question.CorrectOptionIDs())
	case models.TrueFalse, models.ShortAnswer:
		if question.CorrectAnswer == nil {
			return false
		}
		return NormalizeText(payload.TextAnswer) == NormalizeText(*question.CorrectAnswer)
	default:
		return false
	}
}

// NormalizeText lowercases and collapses all whitespace runs to single
// spaces, so " Paris " and "paris" compare equal.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// equalIDSets compares two id lists as sets, ignoring order and
// duplicates.
func equalIDSets(a, b []uint) bool {
	setA := make(map[uint]struct{}, len(a))
	for _, id := range a {
		setA[id] = struct{}{}
	}
	setB := make(map[uint]struct{}, len(b))
	for _, id := range b {
		setB[id] = struct{}{}
	}

	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if _, ok := setB[id]; !ok {
			return false
		}
	}
	return true
}

// Percentage converts a score pair to a 0-100 percentage.
func Percentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return float64(score) * 100 / float64(maxScore)
}

// ===== RESULT PRESENTATION =====

// Feedback tiers derived from the percentage. The thresholds are fixed
// and shared with the reporting layer.
const (
	FeedbackExcellent        = "excellent"
	FeedbackGood             = "good"
	FeedbackPassing          = "passing"
	FeedbackNeedsImprovement = "needs improvement"
)

// FeedbackTier maps a percentage to its qualitative tier.
func FeedbackTier(percentage float64) string {
	switch {
	case percentage >= 90:
		return FeedbackExcellent
	case percentage >= 75:
		return FeedbackGood
	case percentage >= 60:
		return FeedbackPassing
	default:
		return FeedbackNeedsImprovement
	}
}

// PresentResult builds the Result Presenter view from a graded result.
func PresentResult(result *models.GradedResult) *GradedResultView {
	return &GradedResultView{
		GradedResult: *result,
		Feedback:     FeedbackTier(result.Percentage),
	}
}
