package services

import (
	"context"
	"log/slog"
	"mime/multipart"

	"github.com/brightclass/quiz-service/internal/events"
	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"github.com/brightclass/quiz-service/internal/validator"
)

// ===== REQUEST / RESPONSE TYPES =====

type CreateQuizRequest struct {
	Title            string                  `json:"title" validate:"required,min=1,max=200"`
	Description      *string                 `json:"description" validate:"omitempty,max=1000"`
	TimeLimitMinutes int                     `json:"time_limit_minutes" validate:"required,min=1,max=300"`
	Questions        []CreateQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

type UpdateQuizRequest struct {
	Title            *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=1000"`
	TimeLimitMinutes *int    `json:"time_limit_minutes" validate:"omitempty,min=1,max=300"`
}

type CreateQuestionRequest struct {
	Text          string                `json:"text" validate:"required"`
	Type          models.QuestionType   `json:"type" validate:"required,question_type"`
	Points        int                   `json:"points" validate:"required,min=1,max=100"`
	Order         int                   `json:"order"`
	CorrectAnswer *string               `json:"correct_answer"`
	Options       []CreateOptionRequest `json:"options" validate:"omitempty,dive"`
}

type CreateOptionRequest struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

// RecordAnswerRequest carries one answer upsert. SelectedOptionIDs is
// the multiple choice payload, TextAnswer the true/false and short
// answer payload; exactly one of the two is meaningful per question.
type RecordAnswerRequest struct {
	QuestionID        uint   `json:"question_id" validate:"required"`
	SelectedOptionIDs []uint `json:"selected_option_ids"`
	TextAnswer        string `json:"text_answer"`
}

// AttemptResponse is the attempt as served to the student, including
// the live remaining time derived from the stored start time.
type AttemptResponse struct {
	*models.QuizAttempt

	Quiz                 *models.Quiz `json:"quiz,omitempty"`
	TimeRemainingSeconds int          `json:"time_remaining_seconds"`
	CanSubmit            bool         `json:"can_submit"`
}

// GradedResultView is the Result Presenter output: the graded numbers
// plus the qualitative feedback tier.
type GradedResultView struct {
	models.GradedResult

	Feedback string `json:"feedback"`
}

// ===== SERVICE INTERFACES =====

// QuizService owns the quiz definition store contract.
type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*models.Quiz, error)
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)

	// GetForAttempt returns the quiz with its ordered questions and
	// options, read through the definition cache. Fails with
	// ErrQuizUnavailable when the quiz is missing or inactive.
	GetForAttempt(ctx context.Context, quizID uint) (*models.Quiz, error)

	Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*models.Quiz, error)
	UpdateStatus(ctx context.Context, id uint, status models.QuizStatus, userID string) error
	List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error)
	AddQuestions(ctx context.Context, quizID uint, reqs []CreateQuestionRequest, userID string) ([]*models.Question, error)
}

// AttemptService owns the attempt ledger: every operation that crosses
// the persistence trust boundary goes through here.
type AttemptService interface {
	// Start resumes the student's in-progress attempt for the quiz or
	// creates a new one. An attempt whose time has already elapsed is
	// completed before control returns to the caller.
	Start(ctx context.Context, quizID uint, studentID string) (*AttemptResponse, error)

	// RecordAnswer validates and upserts one answer. Idempotent:
	// resubmitting the same answer yields the same stored row.
	RecordAnswer(ctx context.Context, attemptID uint, req *RecordAnswerRequest, studentID string) error

	// Complete grades the attempt and transitions it to completed
	// exactly once. Calling it on a completed attempt returns the
	// stored result unchanged.
	Complete(ctx context.Context, attemptID uint, studentID string, reason models.AttemptEndReason) (*models.GradedResult, error)

	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (int, error)
	List(ctx context.Context, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error)
	GetStats(ctx context.Context, quizID uint, userID string) (*repositories.AttemptStats, error)
}

// ImportService loads quiz questions from staff-uploaded files.
type ImportService interface {
	ImportQuestionsFromFile(ctx context.Context, quizID uint, file multipart.File, filename string, userID string) (*ImportResult, error)
}

// ServiceManager bundles all services for handler wiring.
type ServiceManager interface {
	Quiz() QuizService
	Attempt() AttemptService
	Import() ImportService
}

type serviceManager struct {
	quiz    QuizService
	attempt AttemptService
	imports ImportService
}

// NewServiceManager wires the service layer.
func NewServiceManager(
	repo repositories.Repository,
	quizCache QuizCache,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) ServiceManager {
	quizService := NewQuizService(repo, quizCache, logger, v)
	return &serviceManager{
		quiz:    quizService,
		attempt: NewAttemptService(repo, quizService, publisher, logger, v),
		imports: NewImportService(repo, quizService, logger, v),
	}
}

func (m *serviceManager) Quiz() QuizService {
	return m.quiz
}

func (m *serviceManager) Attempt() AttemptService {
	return m.attempt
}

func (m *serviceManager) Import() ImportService {
	return m.imports
}
