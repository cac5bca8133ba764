package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightclass/quiz-service/internal/cache"
	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"github.com/brightclass/quiz-service/internal/validator"
)

// QuizCache is the read-through cache for quiz definitions.
type QuizCache = cache.CacheService

// quizDefinitionTTL bounds staleness of cached quiz definitions.
const quizDefinitionTTL = 5 * time.Minute

type quizService struct {
	repo      repositories.Repository
	cache     QuizCache
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuizService(repo repositories.Repository, quizCache QuizCache, logger *slog.Logger, v *validator.Validator) QuizService {
	return &quizService{
		repo:      repo,
		cache:     quizCache,
		logger:    logger,
		validator: v,
	}
}

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*models.Quiz, error) {
	s.logger.Info("Creating quiz", "title", req.Title, "creator_id", creatorID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quiz := &models.Quiz{
		Title:            req.Title,
		Description:      req.Description,
		TimeLimitMinutes: req.TimeLimitMinutes,
		Status:           models.QuizActive,
		CreatedBy:        creatorID,
		Questions:        buildQuestions(req.Questions),
	}

	for i := range quiz.Questions {
		if err := s.validator.Question().ValidateQuestion(&quiz.Questions[i]); err != nil {
			return nil, NewValidationError(fmt.Sprintf("questions[%d]", i), err.Error(), nil)
		}
	}

	if err := s.repo.Quiz().Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	return quiz, nil
}

func (s *quizService) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// GetForAttempt serves the quiz definition the session controller runs
// against: active quizzes only, questions and options in order, read
// through the Redis cache.
func (s *quizService) GetForAttempt(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var cached models.Quiz
	if err := s.cache.Get(ctx, cache.QuizKey(quizID), &cached); err == nil {
		if !cached.IsAvailable() {
			return nil, ErrQuizUnavailable
		}
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Quiz cache read failed", "quiz_id", quizID, "error", err)
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizUnavailable
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if cacheErr := s.cache.Set(ctx, cache.QuizKey(quizID), quiz, quizDefinitionTTL); cacheErr != nil {
		s.logger.Warn("Quiz cache write failed", "quiz_id", quizID, "error", cacheErr)
	}

	if !quiz.IsAvailable() {
		return nil, ErrQuizUnavailable
	}

	return quiz, nil
}

func (s *quizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*models.Quiz, error) {
	s.logger.Info("Updating quiz", "quiz_id", id, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quiz, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if quiz.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "quiz", "update", "not the quiz owner")
	}

	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	if req.TimeLimitMinutes != nil {
		quiz.TimeLimitMinutes = *req.TimeLimitMinutes
	}

	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}

	s.invalidate(ctx, id)
	return quiz, nil
}

func (s *quizService) UpdateStatus(ctx context.Context, id uint, status models.QuizStatus, userID string) error {
	s.logger.Info("Updating quiz status", "quiz_id", id, "status", status, "user_id", userID)

	quiz, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if quiz.CreatedBy != userID {
		return NewPermissionError(userID, id, "quiz", "update_status", "not the quiz owner")
	}

	if err := s.repo.Quiz().UpdateStatus(ctx, id, status); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to update quiz status: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	quizzes, total, err := s.repo.Quiz().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return quizzes, total, nil
}

func (s *quizService) AddQuestions(ctx context.Context, quizID uint, reqs []CreateQuestionRequest, userID string) ([]*models.Question, error) {
	s.logger.Info("Adding questions to quiz", "quiz_id", quizID, "count", len(reqs), "user_id", userID)

	quiz, err := s.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if quiz.CreatedBy != userID {
		return nil, NewPermissionError(userID, quizID, "quiz", "add_questions", "not the quiz owner")
	}

	built := buildQuestions(reqs)
	questions := make([]*models.Question, len(built))
	for i := range built {
		questions[i] = &built[i]
	}

	if err := s.validator.Question().ValidateBatch(questions); err != nil {
		return nil, NewValidationError("questions", err.Error(), nil)
	}

	if err := s.repo.Quiz().AddQuestions(ctx, quizID, questions); err != nil {
		return nil, fmt.Errorf("failed to add questions: %w", err)
	}

	s.invalidate(ctx, quizID)
	return questions, nil
}

func (s *quizService) invalidate(ctx context.Context, quizID uint) {
	if err := s.cache.Delete(ctx, cache.QuizKey(quizID)); err != nil {
		s.logger.Warn("Quiz cache invalidation failed", "quiz_id", quizID, "error", err)
	}
}

func buildQuestions(reqs []CreateQuestionRequest) []models.Question {
	questions := make([]models.Question, len(reqs))
	for i, req := range reqs {
		order := req.Order
		if order == 0 {
			order = i + 1
		}

		question := models.Question{
			Text:          req.Text,
			Type:          req.Type,
			Points:        req.Points,
			Order:         order,
			CorrectAnswer: req.CorrectAnswer,
		}

		for j, opt := range req.Options {
			optOrder := opt.Order
			if optOrder == 0 {
				optOrder = j + 1
			}
			question.Options = append(question.Options, models.QuestionOption{
				Text:      opt.Text,
				IsCorrect: opt.IsCorrect,
				Order:     optOrder,
			})
		}

		questions[i] = question
	}
	return questions
}
