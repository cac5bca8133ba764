package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/quiz-service/internal/events"
	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/repositories"
	"github.com/brightclass/quiz-service/internal/validator"
)

// ===== MOCKS =====

type MockQuizRepository struct {
	mock.Mock
}

func (m *MockQuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizRepository) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizRepository) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQuizRepository) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.Quiz), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuizRepository) UpdateStatus(ctx context.Context, id uint, status models.QuizStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockQuizRepository) AddQuestions(ctx context.Context, quizID uint, questions []*models.Question) error {
	args := m.Called(ctx, quizID, questions)
	return args.Error(0)
}

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetActiveAttempt(ctx context.Context, studentID string, quizID uint) (*models.QuizAttempt, error) {
	args := m.Called(ctx, studentID, quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.QuizAttempt), args.Get(1).(int64), args.Error(2)
}

func (m *MockAttemptRepository) Complete(ctx context.Context, id uint, score, maxScore int, reason models.AttemptEndReason, completedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, score, maxScore, reason, completedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptRepository) GetStats(ctx context.Context, quizID uint) (*repositories.AttemptStats, error) {
	args := m.Called(ctx, quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.AttemptStats), args.Error(1)
}

type MockAnswerRepository struct {
	mock.Mock
}

func (m *MockAnswerRepository) Upsert(ctx context.Context, answer *models.StudentAnswer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *MockAnswerRepository) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StudentAnswer, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StudentAnswer), args.Error(1)
}

func (m *MockAnswerRepository) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.StudentAnswer, error) {
	args := m.Called(ctx, attemptID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudentAnswer), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Upsert(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockRepository bundles the per-table mocks behind the aggregate
// interface the services consume.
type MockRepository struct {
	quiz    *MockQuizRepository
	attempt *MockAttemptRepository
	answer  *MockAnswerRepository
	user    *MockUserRepository
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		quiz:    &MockQuizRepository{},
		attempt: &MockAttemptRepository{},
		answer:  &MockAnswerRepository{},
		user:    &MockUserRepository{},
	}
}

func (m *MockRepository) Quiz() repositories.QuizRepository       { return m.quiz }
func (m *MockRepository) Attempt() repositories.AttemptRepository { return m.attempt }
func (m *MockRepository) Answer() repositories.AnswerRepository   { return m.answer }
func (m *MockRepository) User() repositories.UserRepository       { return m.user }
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

// MockQuizService stubs the quiz definition lookups the attempt
// service depends on.
type MockQuizService struct {
	mock.Mock
}

func (m *MockQuizService) Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*models.Quiz, error) {
	args := m.Called(ctx, req, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizService) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizService) GetForAttempt(ctx context.Context, quizID uint) (*models.Quiz, error) {
	args := m.Called(ctx, quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*models.Quiz, error) {
	args := m.Called(ctx, id, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizService) UpdateStatus(ctx context.Context, id uint, status models.QuizStatus, userID string) error {
	args := m.Called(ctx, id, status, userID)
	return args.Error(0)
}

func (m *MockQuizService) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.Quiz), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuizService) AddQuestions(ctx context.Context, quizID uint, reqs []CreateQuestionRequest, userID string) ([]*models.Question, error) {
	args := m.Called(ctx, quizID, reqs, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Question), args.Error(1)
}

// ===== TEST HELPERS =====

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAttemptService(repo *MockRepository, quizSvc *MockQuizService, publisher *events.MockEventPublisher) AttemptService {
	return NewAttemptService(repo, quizSvc, publisher, testLogger(), validator.New())
}

func twoQuestionQuiz() *models.Quiz {
	correct := "Paris"
	return &models.Quiz{
		ID:               1,
		Title:            "Capitals",
		Status:           models.QuizActive,
		TimeLimitMinutes: 30,
		Questions: []models.Question{
			{
				ID:     1,
				QuizID: 1,
				Type:   models.MultipleChoice,
				Points: 1,
				Options: []models.QuestionOption{
					{ID: 1, QuestionID: 1, Text: "London"},
					{ID: 2, QuestionID: 1, Text: "Paris", IsCorrect: true},
					{ID: 3, QuestionID: 1, Text: "Berlin"},
				},
			},
			{
				ID:            2,
				QuizID:        1,
				Type:          models.ShortAnswer,
				Points:        1,
				CorrectAnswer: &correct,
			},
		},
	}
}

// ===== TESTS =====

func TestAttemptService_Start_CreatesNewAttempt(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	quiz := twoQuestionQuiz()
	quizSvc.On("GetForAttempt", mock.Anything, uint(1)).Return(quiz, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, "student-1", uint(1)).Return(nil, nil)
	repo.attempt.On("Create", mock.Anything, mock.MatchedBy(func(a *models.QuizAttempt) bool {
		return a.QuizID == 1 && a.StudentID == "student-1" && a.Status == models.AttemptInProgress
	})).Return(nil)

	resp, err := svc.Start(context.Background(), 1, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, resp.Status)
	assert.True(t, resp.CanSubmit)
	assert.InDelta(t, 30*60, resp.TimeRemainingSeconds, 5)

	eventsSent := publisher.GetPublishedEvents()
	require.Len(t, eventsSent, 1)
	assert.Equal(t, events.EventAttemptStarted, eventsSent[0].Type)
}

func TestAttemptService_Start_ResumeRecomputesRemainingTime(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	quiz := twoQuestionQuiz()
	// Attempt started 20 minutes ago on a 30 minute quiz: the resumed
	// session gets ~600 seconds, not a fresh 1800.
	existing := &models.QuizAttempt{
		ID:        5,
		QuizID:    1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-20 * time.Minute),
	}

	quizSvc.On("GetForAttempt", mock.Anything, uint(1)).Return(quiz, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, "student-1", uint(1)).Return(existing, nil)
	repo.attempt.On("GetByIDWithAnswers", mock.Anything, uint(5)).Return(existing, nil)

	resp, err := svc.Start(context.Background(), 1, "student-1")
	require.NoError(t, err)
	assert.Equal(t, uint(5), resp.QuizAttempt.ID)
	assert.InDelta(t, 600, resp.TimeRemainingSeconds, 5)

	repo.attempt.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAttemptService_Start_ExpiredAttemptCompletedBeforeReturn(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	quiz := twoQuestionQuiz()
	expired := &models.QuizAttempt{
		ID:        9,
		QuizID:    1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-2 * time.Hour),
	}

	score, maxScore := 0, 2
	completedAt := time.Now()
	closed := &models.QuizAttempt{
		ID:          9,
		QuizID:      1,
		StudentID:   "student-1",
		Status:      models.AttemptCompleted,
		StartedAt:   expired.StartedAt,
		CompletedAt: &completedAt,
		Score:       &score,
		MaxScore:    &maxScore,
	}

	quizSvc.On("GetForAttempt", mock.Anything, uint(1)).Return(quiz, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, "student-1", uint(1)).Return(expired, nil)
	repo.attempt.On("GetByID", mock.Anything, uint(9)).Return(expired, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(1)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(9)).Return([]*models.StudentAnswer{}, nil)
	repo.attempt.On("Complete", mock.Anything, uint(9), 0, 2, models.AttemptEndReasonTimeout, mock.Anything).Return(true, nil)
	repo.attempt.On("GetByIDWithAnswers", mock.Anything, uint(9)).Return(closed, nil)

	resp, err := svc.Start(context.Background(), 1, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, resp.Status)
	assert.False(t, resp.CanSubmit)
	assert.Equal(t, 0, resp.TimeRemainingSeconds)

	repo.attempt.AssertCalled(t, "Complete", mock.Anything, uint(9), 0, 2, models.AttemptEndReasonTimeout, mock.Anything)
}

func TestAttemptService_RecordAnswer(t *testing.T) {
	newInProgressAttempt := func() *models.QuizAttempt {
		return &models.QuizAttempt{
			ID:        3,
			QuizID:    1,
			StudentID: "student-1",
			Status:    models.AttemptInProgress,
			StartedAt: time.Now().Add(-1 * time.Minute),
		}
	}

	tests := []struct {
		name    string
		req     *RecordAnswerRequest
		wantErr error
	}{
		{
			name:    "multiple choice answer is upserted",
			req:     &RecordAnswerRequest{QuestionID: 1, SelectedOptionIDs: []uint{2}},
			wantErr: nil,
		},
		{
			name:    "short answer is upserted",
			req:     &RecordAnswerRequest{QuestionID: 2, TextAnswer: "paris"},
			wantErr: nil,
		},
		{
			name:    "unknown question",
			req:     &RecordAnswerRequest{QuestionID: 99, TextAnswer: "x"},
			wantErr: ErrUnknownQuestion,
		},
		{
			name:    "option from another question",
			req:     &RecordAnswerRequest{QuestionID: 1, SelectedOptionIDs: []uint{42}},
			wantErr: ErrInvalidAnswerShape,
		},
		{
			name:    "text answer on multiple choice",
			req:     &RecordAnswerRequest{QuestionID: 1, TextAnswer: "Paris"},
			wantErr: ErrInvalidAnswerShape,
		},
		{
			name:    "empty text on short answer",
			req:     &RecordAnswerRequest{QuestionID: 2},
			wantErr: ErrInvalidAnswerShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			quizSvc := &MockQuizService{}
			publisher := events.NewMockEventPublisher(testLogger())
			svc := newTestAttemptService(repo, quizSvc, publisher)

			repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(newInProgressAttempt(), nil)
			repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(1)).Return(twoQuestionQuiz(), nil)
			repo.answer.On("Upsert", mock.Anything, mock.Anything).Return(nil)

			err := svc.RecordAnswer(context.Background(), 3, tt.req, "student-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.answer.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			repo.answer.AssertCalled(t, "Upsert", mock.Anything, mock.MatchedBy(func(a *models.StudentAnswer) bool {
				if a.AttemptID != 3 || a.QuestionID != tt.req.QuestionID {
					return false
				}
				var payload models.AnswerPayload
				return json.Unmarshal(a.AnswerData, &payload) == nil
			}))
		})
	}
}

func TestAttemptService_RecordAnswer_ClosedAttempt(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	completedAt := time.Now()
	closed := &models.QuizAttempt{
		ID:          3,
		QuizID:      1,
		StudentID:   "student-1",
		Status:      models.AttemptCompleted,
		StartedAt:   time.Now().Add(-10 * time.Minute),
		CompletedAt: &completedAt,
	}
	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(closed, nil)

	err := svc.RecordAnswer(context.Background(), 3, &RecordAnswerRequest{QuestionID: 1, SelectedOptionIDs: []uint{2}}, "student-1")
	assert.ErrorIs(t, err, ErrAttemptClosed)
	repo.answer.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestAttemptService_RecordAnswer_IdempotentResubmission(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	attempt := &models.QuizAttempt{
		ID:        3,
		QuizID:    1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-1 * time.Minute),
	}
	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(1)).Return(twoQuestionQuiz(), nil)

	var payloads []string
	repo.answer.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		answer := args.Get(1).(*models.StudentAnswer)
		payloads = append(payloads, string(answer.AnswerData))
	}).Return(nil)

	req := &RecordAnswerRequest{QuestionID: 2, TextAnswer: "paris"}
	require.NoError(t, svc.RecordAnswer(context.Background(), 3, req, "student-1"))
	require.NoError(t, svc.RecordAnswer(context.Background(), 3, req, "student-1"))

	require.Len(t, payloads, 2)
	assert.Equal(t, payloads[0], payloads[1])
}

func TestAttemptService_Complete_GradesAndPublishes(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	quiz := twoQuestionQuiz()
	attempt := &models.QuizAttempt{
		ID:        3,
		QuizID:    1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-5 * time.Minute),
	}

	mcData, _ := json.Marshal(models.AnswerPayload{SelectedOptionIDs: []uint{2}})
	textData, _ := json.Marshal(models.AnswerPayload{TextAnswer: "  PARIS "})
	answers := []*models.StudentAnswer{
		{AttemptID: 3, QuestionID: 1, AnswerData: mcData},
		{AttemptID: 3, QuestionID: 2, AnswerData: textData},
	}

	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(1)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(3)).Return(answers, nil)
	repo.attempt.On("Complete", mock.Anything, uint(3), 2, 2, models.AttemptEndReasonSubmit, mock.Anything).Return(true, nil)

	result, err := svc.Complete(context.Background(), 3, "student-1", models.AttemptEndReasonSubmit)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.MaxScore)
	assert.Equal(t, float64(100), result.Percentage)

	eventsSent := publisher.GetPublishedEvents()
	require.Len(t, eventsSent, 1)
	assert.Equal(t, events.EventAttemptCompleted, eventsSent[0].Type)
}

func TestAttemptService_Complete_AlreadyCompletedReturnsStoredResult(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	score, maxScore := 7, 10
	completedAt := time.Now()
	closed := &models.QuizAttempt{
		ID:          3,
		QuizID:      1,
		StudentID:   "student-1",
		Status:      models.AttemptCompleted,
		StartedAt:   time.Now().Add(-30 * time.Minute),
		CompletedAt: &completedAt,
		Score:       &score,
		MaxScore:    &maxScore,
	}
	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(closed, nil)

	first, err := svc.Complete(context.Background(), 3, "student-1", models.AttemptEndReasonSubmit)
	require.NoError(t, err)
	second, err := svc.Complete(context.Background(), 3, "student-1", models.AttemptEndReasonSubmit)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 7, first.Score)
	assert.Equal(t, 10, first.MaxScore)
	assert.Equal(t, float64(70), first.Percentage)

	// No re-grading on either call.
	repo.attempt.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestAttemptService_Complete_LosesRaceReturnsWinnersResult(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	quiz := twoQuestionQuiz()
	attempt := &models.QuizAttempt{
		ID:        3,
		QuizID:    1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-29 * time.Minute),
	}

	score, maxScore := 1, 2
	completedAt := time.Now()
	winner := &models.QuizAttempt{
		ID:          3,
		QuizID:      1,
		StudentID:   "student-1",
		Status:      models.AttemptCompleted,
		StartedAt:   attempt.StartedAt,
		CompletedAt: &completedAt,
		Score:       &score,
		MaxScore:    &maxScore,
	}

	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(attempt, nil).Once()
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(1)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(3)).Return([]*models.StudentAnswer{}, nil)
	// The concurrent timer path already flipped the status: the
	// check-and-set reports no rows written.
	repo.attempt.On("Complete", mock.Anything, uint(3), 0, 2, models.AttemptEndReasonSubmit, mock.Anything).Return(false, nil)
	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(winner, nil).Once()

	result, err := svc.Complete(context.Background(), 3, "student-1", models.AttemptEndReasonSubmit)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 2, result.MaxScore)

	// The loser publishes nothing; the winning path already did.
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestAttemptService_GetTimeRemaining_ClosedAttemptIsZero(t *testing.T) {
	repo := newMockRepository()
	quizSvc := &MockQuizService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, quizSvc, publisher)

	completedAt := time.Now()
	closed := &models.QuizAttempt{
		ID:          3,
		QuizID:      1,
		StudentID:   "student-1",
		Status:      models.AttemptCompleted,
		StartedAt:   time.Now().Add(-5 * time.Minute),
		CompletedAt: &completedAt,
	}
	repo.attempt.On("GetByID", mock.Anything, uint(3)).Return(closed, nil)

	remaining, err := svc.GetTimeRemaining(context.Background(), 3, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
