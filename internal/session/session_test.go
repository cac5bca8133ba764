package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/services"
)

// fakeLedger is an in-memory AttemptLedger with fault injection for
// exercising retry and flush behavior.
type fakeLedger struct {
	mu sync.Mutex

	attempt *models.QuizAttempt
	quiz    *models.Quiz

	recorded       []services.RecordAnswerRequest
	recordFailures int

	completeCalls    int
	completeFailures int
	completeReason   models.AttemptEndReason
	result           *models.GradedResult
}

func (f *fakeLedger) Start(ctx context.Context, quizID uint, studentID string) (*services.AttemptResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	remaining := int(time.Until(f.attempt.Deadline(f.quiz.TimeLimitMinutes)).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &services.AttemptResponse{
		QuizAttempt:          f.attempt,
		Quiz:                 f.quiz,
		TimeRemainingSeconds: remaining,
		CanSubmit:            !f.attempt.IsClosed(),
	}, nil
}

func (f *fakeLedger) RecordAnswer(ctx context.Context, attemptID uint, req *services.RecordAnswerRequest, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordFailures > 0 {
		f.recordFailures--
		return errors.New("transient write failure")
	}
	f.recorded = append(f.recorded, *req)
	return nil
}

func (f *fakeLedger) Complete(ctx context.Context, attemptID uint, studentID string, reason models.AttemptEndReason) (*models.GradedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.completeCalls++
	if f.completeFailures > 0 {
		f.completeFailures--
		return nil, errors.New("transient completion failure")
	}
	f.completeReason = reason
	return f.result, nil
}

func (f *fakeLedger) recordedAnswers() []services.RecordAnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]services.RecordAnswerRequest, len(f.recorded))
	copy(out, f.recorded)
	return out
}

func (f *fakeLedger) completions() (int, models.AttemptEndReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls, f.completeReason
}

func newFakeLedger(startedAgo time.Duration, timeLimitMinutes int) *fakeLedger {
	correct := "Paris"
	return &fakeLedger{
		attempt: &models.QuizAttempt{
			ID:        1,
			QuizID:    1,
			StudentID: "student-1",
			Status:    models.AttemptInProgress,
			StartedAt: time.Now().Add(-startedAgo),
		},
		quiz: &models.Quiz{
			ID:               1,
			Title:            "Capitals",
			Status:           models.QuizActive,
			TimeLimitMinutes: timeLimitMinutes,
			Questions: []models.Question{
				{
					ID:     10,
					QuizID: 1,
					Type:   models.MultipleChoice,
					Points: 1,
					Options: []models.QuestionOption{
						{ID: 1, QuestionID: 10, Text: "London"},
						{ID: 2, QuestionID: 10, Text: "Paris", IsCorrect: true},
					},
				},
				{
					ID:            20,
					QuizID:        1,
					Type:          models.ShortAnswer,
					Points:        1,
					CorrectAnswer: &correct,
				},
			},
		},
		result: &models.GradedResult{AttemptID: 1, Score: 2, MaxScore: 2, Percentage: 100},
	}
}

func newTestManager(ledger AttemptLedger) *Manager {
	return NewManager(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSession_NavigateFlushesDraft(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EditAnswer(10, []uint{2}, ""))
	require.Equal(t, 0, s.CurrentIndex())

	// Moving to Q2 must persist the edited Q1 answer first.
	require.NoError(t, s.Navigate(context.Background(), 1))
	assert.Equal(t, 1, s.CurrentIndex())

	recorded := ledger.recordedAnswers()
	require.Len(t, recorded, 1)
	assert.Equal(t, uint(10), recorded[0].QuestionID)
	assert.Equal(t, []uint{2}, recorded[0].SelectedOptionIDs)
}

func TestSession_NavigateBlockedByFailedFlush(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	ledger.recordFailures = 1
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EditAnswer(10, []uint{2}, ""))

	// First navigation hits the transient failure: the pointer stays
	// put and the draft is retained.
	err = s.Navigate(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, s.CurrentIndex())
	assert.Empty(t, ledger.recordedAnswers())

	// The retry succeeds and carries the same draft.
	require.NoError(t, s.Navigate(context.Background(), 1))
	assert.Equal(t, 1, s.CurrentIndex())
	recorded := ledger.recordedAnswers()
	require.Len(t, recorded, 1)
	assert.Equal(t, uint(10), recorded[0].QuestionID)
}

func TestSession_NavigateBounds(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Navigate(context.Background(), -1))
	assert.Error(t, s.Navigate(context.Background(), 2))
	assert.NoError(t, s.Navigate(context.Background(), 1))
}

func TestSession_FlagsAreSessionLocal(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	assert.True(t, s.ToggleFlag(10))
	assert.True(t, s.Flagged(10))
	assert.False(t, s.ToggleFlag(10))
	assert.False(t, s.Flagged(10))

	assert.True(t, s.ToggleFlag(20))
	s.Close()

	// A fresh session on the same attempt starts with no flags.
	s2, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer s2.Close()
	assert.False(t, s2.Flagged(20))
	assert.Empty(t, s2.FlaggedQuestions())

	// Flagging never touched the ledger.
	assert.Empty(t, ledger.recordedAnswers())
}

func TestSession_SubmitFlushesAllDraftsAndCompletes(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	require.NoError(t, s.EditAnswer(10, []uint{2}, ""))
	require.NoError(t, s.EditAnswer(20, nil, "paris"))

	result, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.MaxScore)

	assert.Len(t, ledger.recordedAnswers(), 2)
	calls, reason := ledger.completions()
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.AttemptEndReasonSubmit, reason)

	// Second submit returns the stored result without re-completing.
	again, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result, again)
	calls, _ = ledger.completions()
	assert.Equal(t, 1, calls)

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be done after submit")
	}
}

func TestSession_ResumeDerivesRemainingFromStartTime(t *testing.T) {
	// 30 minute quiz started 20 minutes ago: ~600 seconds remain.
	ledger := newFakeLedger(20*time.Minute, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer s.Close()

	assert.InDelta(t, 600, s.TimeRemaining().Seconds(), 5)
}

func TestSession_TimerExpiryCompletesWithTimeout(t *testing.T) {
	// Deadline lands ~150ms from now.
	ledger := newFakeLedger(30*time.Minute-150*time.Millisecond, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("timer expiry did not complete the session")
	}

	calls, reason := ledger.completions()
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.AttemptEndReasonTimeout, reason)

	result, completed := s.Completed()
	assert.True(t, completed)
	assert.Equal(t, 2, result.Score)

	// No further edits accepted.
	assert.ErrorIs(t, s.EditAnswer(10, []uint{2}, ""), services.ErrAttemptClosed)
}

func TestSession_TimerExpiryRetriesUntilAcked(t *testing.T) {
	ledger := newFakeLedger(30*time.Minute-100*time.Millisecond, 30)
	ledger.completeFailures = 1
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("expiry retry never succeeded")
	}

	calls, reason := ledger.completions()
	assert.Equal(t, 2, calls)
	assert.Equal(t, models.AttemptEndReasonTimeout, reason)
}

func TestSession_CloseIsSoftCancel(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	s.Close()
	// Closing twice is harmless.
	s.Close()

	calls, _ := ledger.completions()
	assert.Equal(t, 0, calls)

	_, completed := s.Completed()
	assert.False(t, completed)

	assert.ErrorIs(t, s.EditAnswer(10, []uint{2}, ""), services.ErrAttemptClosed)
}

func TestManager_OpenReusesLiveSession(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	first, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	defer first.Close()

	second, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManager_OpenClosedAttemptYieldsCompletedSession(t *testing.T) {
	ledger := newFakeLedger(10*time.Minute, 30)
	score, maxScore := 1, 2
	completedAt := time.Now()
	ledger.attempt.Status = models.AttemptCompleted
	ledger.attempt.CompletedAt = &completedAt
	ledger.attempt.Score = &score
	ledger.attempt.MaxScore = &maxScore
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)

	result, completed := s.Completed()
	require.True(t, completed)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 2, result.MaxScore)
	assert.Equal(t, float64(50), result.Percentage)

	select {
	case <-s.Done():
	default:
		t.Fatal("completed session should report done")
	}
}

func TestManager_StaleCleanupKeepsReplacementSession(t *testing.T) {
	ledger := newFakeLedger(0, 30)
	m := newTestManager(ledger)

	first, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	first.Close()

	second, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	require.NotSame(t, first, second)
	defer second.Close()

	// Let the closed session's cleanup goroutine finish. It must not
	// evict the replacement from the live set.
	time.Sleep(200 * time.Millisecond)

	got, ok := m.Get(1)
	require.True(t, ok)
	assert.Same(t, second, got)

	third, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	assert.Same(t, second, third)
}

func TestSession_CloseTearsDownPendingTimer(t *testing.T) {
	// Deadline is imminent. Close must win whether or not the countdown
	// goroutine has armed its timer yet.
	ledger := newFakeLedger(30*time.Minute-150*time.Millisecond, 30)
	m := newTestManager(ledger)

	s, err := m.Open(context.Background(), 1, "student-1")
	require.NoError(t, err)
	s.Close()

	time.Sleep(500 * time.Millisecond)

	calls, _ := ledger.completions()
	assert.Equal(t, 0, calls)
}
