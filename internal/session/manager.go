package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brightclass/quiz-service/internal/services"
)

// Manager opens sessions against the attempt ledger and tracks the
// live ones so a device reconnect reuses the controller instead of
// spawning a second timer for the same attempt.
type Manager struct {
	ledger AttemptLedger
	logger *slog.Logger

	mu     sync.Mutex
	active map[uint]*Session
}

func NewManager(ledger AttemptLedger, logger *slog.Logger) *Manager {
	return &Manager{
		ledger: ledger,
		logger: logger,
		active: make(map[uint]*Session),
	}
}

// Open starts or resumes the student's attempt on a quiz and returns a
// live session for it. If the resumed attempt's time has already
// elapsed the ledger completes it first, and the returned session is
// already in its terminal state carrying the stored result.
func (m *Manager) Open(ctx context.Context, quizID uint, studentID string) (*Session, error) {
	resp, err := m.ledger.Start(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[resp.QuizAttempt.ID]; ok && existing.isActive() {
		return existing, nil
	}

	s := &Session{
		ledger:    m.ledger,
		logger:    m.logger,
		attemptID: resp.QuizAttempt.ID,
		quizID:    quizID,
		studentID: studentID,
		questions: resp.Quiz.Questions,
		deadline:  resp.QuizAttempt.Deadline(resp.Quiz.TimeLimitMinutes),
		drafts:    make(map[uint]*Draft),
		flags:     make(map[uint]bool),
		done:      make(chan struct{}),
	}

	if resp.QuizAttempt.IsClosed() {
		s.state = stateCompleted
		s.result = services.StoredResult(resp.QuizAttempt)
		close(s.done)
		return s, nil
	}

	s.state = stateActive
	s.timerStop = make(chan struct{})
	m.active[resp.QuizAttempt.ID] = s
	go m.run(ctx, s)

	m.logger.Info("Session opened",
		"attempt_id", s.attemptID,
		"quiz_id", quizID,
		"student_id", studentID,
		"time_remaining", s.TimeRemaining())

	return s, nil
}

// Get returns the live session for an attempt, if any.
func (m *Manager) Get(attemptID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[attemptID]
	return s, ok
}

// run owns the session's timer goroutine and drops the session from
// the live set once it reaches a terminal state. The timer keeps its
// own lifetime: cancelling the request that opened the session must
// not cancel the countdown.
func (m *Manager) run(ctx context.Context, s *Session) {
	s.watchTimer(context.WithoutCancel(ctx))

	<-s.Done()

	m.mu.Lock()
	// A newer session may already occupy the slot after a close/reopen;
	// only drop the entry if it is still ours.
	if cur, ok := m.active[s.attemptID]; ok && cur == s {
		delete(m.active, s.attemptID)
	}
	m.mu.Unlock()
}
