// Package session hosts the in-memory controller for one student's
// live pass through a quiz: the countdown, the current-question
// pointer, draft answer capture, review flags, and the single
// completion trigger. Everything durable goes through the attempt
// ledger; everything here is lost when the session ends.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/brightclass/quiz-service/internal/services"
)

// AttemptLedger is the slice of the attempt service the controller
// persists through. Start and Complete are idempotent on the far side.
type AttemptLedger interface {
	Start(ctx context.Context, quizID uint, studentID string) (*services.AttemptResponse, error)
	RecordAnswer(ctx context.Context, attemptID uint, req *services.RecordAnswerRequest, studentID string) error
	Complete(ctx context.Context, attemptID uint, studentID string, reason models.AttemptEndReason) (*models.GradedResult, error)
}

// Draft is an edited-but-unsaved answer for one question. It lives in
// the session until a flush succeeds; a failed flush keeps it queued.
type Draft struct {
	SelectedOptionIDs []uint
	TextAnswer        string
}

type sessionState int

const (
	stateActive sessionState = iota
	stateClosed
	stateCompleted
)

// Session drives exactly one in-progress attempt. All methods are safe
// for concurrent use; the mutex doubles as the per-attempt write queue,
// so answer flushes reach the ledger in the order they were issued.
type Session struct {
	ledger AttemptLedger
	logger *slog.Logger

	attemptID uint
	quizID    uint
	studentID string
	questions []models.Question
	deadline  time.Time

	mu           sync.Mutex
	state        sessionState
	currentIndex int
	drafts       map[uint]*Draft
	flags        map[uint]bool
	result       *models.GradedResult

	timer     *time.Timer
	timerStop chan struct{}
	done      chan struct{}
}

// Completed reports whether the attempt reached its terminal state
// through this session, and the stored result if so.
func (s *Session) Completed() (*models.GradedResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == stateCompleted
}

func (s *Session) AttemptID() uint { return s.attemptID }
func (s *Session) QuizID() uint    { return s.quizID }

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Done is closed once the session reaches a terminal state, whether by
// submit, timer expiry, or Close.
func (s *Session) Done() <-chan struct{} { return s.done }

// CurrentIndex returns the question the student is looking at.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// CurrentQuestion returns the question under the pointer.
func (s *Session) CurrentQuestion() *models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex < 0 || s.currentIndex >= len(s.questions) {
		return nil
	}
	return &s.questions[s.currentIndex]
}

// TimeRemaining derives the countdown from the deadline fixed at open
// time. It never re-reads the full limit, so a resumed session shows
// the time that was actually left.
func (s *Session) TimeRemaining() time.Duration {
	remaining := time.Until(s.deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EditAnswer captures a draft for a question without persisting it.
// Drafts survive failed flushes and are retried on the next flush.
func (s *Session) EditAnswer(questionID uint, selectedOptionIDs []uint, textAnswer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return services.ErrAttemptClosed
	}
	if s.questionByID(questionID) == nil {
		return services.ErrUnknownQuestion
	}

	ids := make([]uint, len(selectedOptionIDs))
	copy(ids, selectedOptionIDs)
	s.drafts[questionID] = &Draft{SelectedOptionIDs: ids, TextAnswer: textAnswer}
	return nil
}

// SaveAnswer flushes the draft for one question to the ledger. The
// draft is only dropped once the write is acknowledged.
func (s *Session) SaveAnswer(ctx context.Context, questionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return services.ErrAttemptClosed
	}
	return s.flushLocked(ctx, questionID)
}

// Navigate moves the question pointer. The current question's draft is
// flushed first, and a failed flush blocks the move so an edited
// answer is never silently dropped.
func (s *Session) Navigate(ctx context.Context, targetIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return services.ErrAttemptClosed
	}
	if targetIndex < 0 || targetIndex >= len(s.questions) {
		return fmt.Errorf("navigate: index %d out of range [0,%d)", targetIndex, len(s.questions))
	}

	current := s.questions[s.currentIndex]
	if err := s.flushLocked(ctx, current.ID); err != nil {
		return fmt.Errorf("failed to save answer before navigating: %w", err)
	}

	s.currentIndex = targetIndex
	return nil
}

// ToggleFlag flips the session-local "review later" marker for a
// question. Flags are never persisted and never affect scoring; a new
// session starts with none.
func (s *Session) ToggleFlag(questionID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[questionID] = !s.flags[questionID]
	return s.flags[questionID]
}

// Flagged reports the marker state for a question.
func (s *Session) Flagged(questionID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[questionID]
}

// FlaggedQuestions lists the questions currently marked for review.
func (s *Session) FlaggedQuestions() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint
	for id, set := range s.flags {
		if set {
			ids = append(ids, id)
		}
	}
	return ids
}

// Submit flushes every outstanding draft and completes the attempt.
// Calling it twice returns the stored result unchanged.
func (s *Session) Submit(ctx context.Context) (*models.GradedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateCompleted {
		return s.result, nil
	}
	if s.state == stateClosed {
		return nil, services.ErrAttemptClosed
	}

	for questionID := range s.drafts {
		if err := s.flushLocked(ctx, questionID); err != nil {
			return nil, fmt.Errorf("failed to save answer before submit: %w", err)
		}
	}

	result, err := s.ledger.Complete(ctx, s.attemptID, s.studentID, models.AttemptEndReasonSubmit)
	if err != nil {
		return nil, err
	}

	s.finishLocked(result)
	return result, nil
}

// Close is a soft cancel: the timer is torn down and the session stops
// accepting edits, but the attempt stays in progress and resumable
// until its deadline. There is no "discard attempt".
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return
	}
	s.state = stateClosed
	s.stopTimerLocked()
	close(s.done)

	s.logger.Info("Session closed, attempt remains resumable",
		"attempt_id", s.attemptID,
		"student_id", s.studentID)
}

// ===== INTERNAL =====

// flushLocked writes one draft to the ledger. Caller holds s.mu, which
// keeps writes for this attempt in issue order.
func (s *Session) flushLocked(ctx context.Context, questionID uint) error {
	draft, ok := s.drafts[questionID]
	if !ok {
		return nil
	}

	req := &services.RecordAnswerRequest{
		QuestionID:        questionID,
		SelectedOptionIDs: draft.SelectedOptionIDs,
		TextAnswer:        draft.TextAnswer,
	}
	if err := s.ledger.RecordAnswer(ctx, s.attemptID, req, s.studentID); err != nil {
		// Draft stays queued for the next flush.
		s.logger.Warn("Answer flush failed, draft retained",
			"attempt_id", s.attemptID,
			"question_id", questionID,
			"error", err)
		return err
	}

	delete(s.drafts, questionID)
	return nil
}

func (s *Session) questionByID(questionID uint) *models.Question {
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			return &s.questions[i]
		}
	}
	return nil
}

func (s *Session) finishLocked(result *models.GradedResult) {
	s.result = result
	if s.state == stateActive {
		s.stopTimerLocked()
		close(s.done)
	}
	s.state = stateCompleted
	s.flags = make(map[uint]bool)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
}

// watchTimer waits for the deadline and then drives the system-side
// completion. It fires at most once per session and is torn down on
// every exit path.
func (s *Session) watchTimer(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateActive {
		// Closed or completed before the timer was armed.
		s.mu.Unlock()
		return
	}
	remaining := time.Until(s.deadline)
	if remaining < 0 {
		remaining = 0
	}
	s.timer = time.NewTimer(remaining)
	stop := s.timerStop
	s.mu.Unlock()

	select {
	case <-s.timer.C:
		s.expire(ctx)
	case <-stop:
	case <-ctx.Done():
	}
}

// expire completes the attempt on the student's behalf. The student
// can no longer act once time is up, so transient ledger failures are
// retried until the completion is acknowledged.
func (s *Session) expire(ctx context.Context) {
	s.logger.Info("Attempt timer expired",
		"attempt_id", s.attemptID,
		"student_id", s.studentID)

	backoff := expireRetryBase
	for attempt := 1; ; attempt++ {
		result, err := s.ledger.Complete(ctx, s.attemptID, s.studentID, models.AttemptEndReasonTimeout)
		if err == nil {
			s.mu.Lock()
			if s.state != stateCompleted {
				s.finishLocked(result)
			}
			s.mu.Unlock()
			return
		}

		s.logger.Error("Timeout completion failed, retrying",
			"attempt_id", s.attemptID,
			"retry", attempt,
			"error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < expireRetryMax {
			backoff *= 2
		}
	}
}

const (
	expireRetryBase = 500 * time.Millisecond
	expireRetryMax  = 15 * time.Second
)
