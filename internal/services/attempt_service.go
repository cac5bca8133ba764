package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightclass/quiz-service/internal/events"
	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"github.com/brightclass/quiz-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	quiz      QuizService
	publisher events.EventPublisher
	grader    *Grader
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAttemptService(
	repo repositories.Repository,
	quiz QuizService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) AttemptService {
	return &attemptService{
		repo:      repo,
		quiz:      quiz,
		publisher: publisher,
		grader:    NewGrader(),
		logger:    logger,
		validator: v,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting quiz attempt", "quiz_id", quizID, "student_id", studentID)

	quiz, err := s.quiz.GetForAttempt(ctx, quizID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Attempt().GetActiveAttempt(ctx, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active attempt: %w", err)
	}

	if existing != nil {
		// Resume path. An attempt whose time has already elapsed is
		// completed here, before the caller ever sees it in progress.
		if remainingSeconds(existing, quiz) <= 0 {
			s.logger.Info("Resumed attempt already expired, completing",
				"attempt_id", existing.ID, "student_id", studentID)

			if _, err := s.Complete(ctx, existing.ID, studentID, models.AttemptEndReasonTimeout); err != nil {
				return nil, fmt.Errorf("failed to complete expired attempt: %w", err)
			}

			closed, err := s.repo.Attempt().GetByIDWithAnswers(ctx, existing.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload completed attempt: %w", err)
			}
			return s.buildAttemptResponse(closed, quiz), nil
		}

		s.logger.Info("Resuming existing attempt", "attempt_id", existing.ID)
		s.publishEvent(ctx, events.NewAttemptResumedEvent(existing, quiz))

		withAnswers, err := s.repo.Attempt().GetByIDWithAnswers(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load attempt answers: %w", err)
		}
		return s.buildAttemptResponse(withAnswers, quiz), nil
	}

	attempt := &models.QuizAttempt{
		QuizID:    quizID,
		StudentID: studentID,
		Status:    models.AttemptInProgress,
		StartedAt: time.Now(),
	}

	if err := s.repo.Attempt().Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Quiz attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quizID,
		"student_id", studentID)

	s.publishEvent(ctx, events.NewAttemptStartedEvent(attempt, quiz))

	return s.buildAttemptResponse(attempt, quiz), nil
}

func (s *attemptService) RecordAnswer(ctx context.Context, attemptID uint, req *RecordAnswerRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "record_answer")
	if err != nil {
		return err
	}

	if attempt.IsClosed() {
		return ErrAttemptClosed
	}

	quiz, err := s.getQuizDefinition(ctx, attempt.QuizID)
	if err != nil {
		return err
	}

	// Server-side expiry guard: an answer arriving after the deadline
	// closes the attempt instead of being recorded.
	if remainingSeconds(attempt, quiz) <= 0 {
		if _, err := s.Complete(ctx, attemptID, studentID, models.AttemptEndReasonTimeout); err != nil {
			s.logger.Error("Failed to complete expired attempt on answer write",
				"attempt_id", attemptID, "error", err)
		}
		return ErrAttemptClosed
	}

	question := quiz.QuestionByID(req.QuestionID)
	if question == nil {
		return ErrUnknownQuestion
	}

	payload, err := answerPayload(question, req)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal answer payload: %w", err)
	}

	answer := &models.StudentAnswer{
		AttemptID:   attemptID,
		QuestionID:  req.QuestionID,
		AnswerData:  data,
		SubmittedAt: time.Now(),
	}

	if err := s.repo.Answer().Upsert(ctx, answer); err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}

	s.logger.Debug("Answer recorded",
		"attempt_id", attemptID,
		"question_id", req.QuestionID)

	return nil
}

func (s *attemptService) Complete(ctx context.Context, attemptID uint, studentID string, reason models.AttemptEndReason) (*models.GradedResult, error) {
	s.logger.Info("Completing quiz attempt",
		"attempt_id", attemptID,
		"student_id", studentID,
		"reason", reason)

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "complete")
	if err != nil {
		return nil, err
	}

	if attempt.IsClosed() {
		// Safe to call twice: the stored result is returned unchanged,
		// nothing is re-scored.
		return StoredResult(attempt), nil
	}

	quiz, err := s.getQuizDefinition(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	answers, err := s.repo.Answer().GetByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	score, maxScore, err := s.grader.Grade(quiz, answers)
	if err != nil {
		return nil, fmt.Errorf("failed to grade attempt: %w", err)
	}

	completedAt := time.Now()
	won, err := s.repo.Attempt().Complete(ctx, attemptID, score, maxScore, reason, completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to complete attempt: %w", err)
	}

	if !won {
		// Lost the race against a concurrent completion (timer vs.
		// manual submit); the first transition wins and its result is
		// authoritative.
		s.logger.Info("Attempt already completed by concurrent path", "attempt_id", attemptID)
		closed, err := s.repo.Attempt().GetByID(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload completed attempt: %w", err)
		}
		return StoredResult(closed), nil
	}

	result := &models.GradedResult{
		AttemptID:  attemptID,
		Score:      score,
		MaxScore:   maxScore,
		Percentage: Percentage(score, maxScore),
	}

	s.logger.Info("Quiz attempt completed",
		"attempt_id", attemptID,
		"score", score,
		"max_score", maxScore,
		"reason", reason)

	attempt.Status = models.AttemptCompleted
	attempt.CompletedAt = &completedAt
	s.publishEvent(ctx, events.NewAttemptCompletedEvent(attempt, result, reason))

	return result, nil
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "read")
	if err != nil {
		return nil, err
	}

	withAnswers, err := s.repo.Attempt().GetByIDWithAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt answers: %w", err)
	}

	quiz, err := s.getQuizDefinition(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(withAnswers, quiz), nil
}

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "get_time_remaining")
	if err != nil {
		return 0, err
	}

	if attempt.IsClosed() {
		return 0, nil
	}

	quiz, err := s.getQuizDefinition(ctx, attempt.QuizID)
	if err != nil {
		return 0, err
	}

	remaining := remainingSeconds(attempt, quiz)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ===== LIST OPERATIONS =====

func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error) {
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	// Students only ever see their own attempts.
	if role == models.RoleStudent {
		filters.StudentID = &userID
	}

	attempts, total, err := s.repo.Attempt().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	responses := make([]*AttemptResponse, len(attempts))
	for i, attempt := range attempts {
		responses[i] = &AttemptResponse{QuizAttempt: attempt}
	}

	return responses, total, nil
}

func (s *attemptService) GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error) {
	role, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleStudent {
		return nil, NewPermissionError(userID, quizID, "quiz", "view_stats", "insufficient role")
	}

	stats, err := s.repo.Attempt().GetStats(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}
	return stats, nil
}

// ===== HELPER FUNCTIONS =====

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != userID {
		role, roleErr := s.getUserRole(ctx, userID)
		if roleErr != nil || role == models.RoleStudent {
			return nil, NewPermissionError(userID, attemptID, "attempt", action, "attempt belongs to another student")
		}
	}

	return attempt, nil
}

// getQuizDefinition loads the quiz straight from the store, bypassing
// the cache: grading must see the question set as of completion time.
func (s *attemptService) getQuizDefinition(ctx context.Context, quizID uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// Unknown to the local mirror; treat as least privilege.
			return models.RoleStudent, nil
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

func (s *attemptService) buildAttemptResponse(attempt *models.QuizAttempt, quiz *models.Quiz) *AttemptResponse {
	remaining := remainingSeconds(attempt, quiz)
	if remaining < 0 || attempt.IsClosed() {
		remaining = 0
	}

	return &AttemptResponse{
		QuizAttempt:          attempt,
		Quiz:                 quiz,
		TimeRemainingSeconds: remaining,
		CanSubmit:            !attempt.IsClosed() && remaining > 0,
	}
}

func (s *attemptService) publishEvent(ctx context.Context, event *events.AttemptEvent) {
	if err := s.publisher.PublishAttemptEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish attempt event",
			"event_type", event.Type,
			"error", err)
	}
}

// remainingSeconds derives the remaining time from the stored start
// time, never from a restarted timer.
func remainingSeconds(attempt *models.QuizAttempt, quiz *models.Quiz) int {
	deadline := attempt.Deadline(quiz.TimeLimitMinutes)
	return int(time.Until(deadline).Seconds())
}

// StoredResult rebuilds the graded result recorded on a closed attempt.
func StoredResult(attempt *models.QuizAttempt) *models.GradedResult {
	result := &models.GradedResult{AttemptID: attempt.ID}
	if attempt.Score != nil {
		result.Score = *attempt.Score
	}
	if attempt.MaxScore != nil {
		result.MaxScore = *attempt.MaxScore
	}
	result.Percentage = Percentage(result.Score, result.MaxScore)
	return result
}

// answerPayload validates the request shape against the question type
// and produces the storage payload.
func answerPayload(question *models.Question, req *RecordAnswerRequest) (*models.AnswerPayload, error) {
	switch question.Type {
	case models.MultipleChoice:
		if req.TextAnswer != "" {
			return nil, ErrInvalidAnswerShape
		}
		for _, id := range req.SelectedOptionIDs {
			if !question.HasOption(id) {
				return nil, ErrInvalidAnswerShape
			}
		}
		return &models.AnswerPayload{SelectedOptionIDs: req.SelectedOptionIDs}, nil

	case models.TrueFalse, models.ShortAnswer:
		if len(req.SelectedOptionIDs) > 0 || req.TextAnswer == "" {
			return nil, ErrInvalidAnswerShape
		}
		return &models.AnswerPayload{TextAnswer: req.TextAnswer}, nil

	default:
		return nil, ErrInvalidAnswerShape
	}
}
