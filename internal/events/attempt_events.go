package events

import (
	"time"

	"github.com/brightclass/quiz-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of attempt lifecycle events
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptResumed   EventType = "attempt.resumed"
	EventAttemptCompleted EventType = "attempt.completed"
	EventAttemptExpired   EventType = "attempt.expired"
)

// AttemptEvent is the base event structure for all attempt lifecycle
// events published to the broker.
type AttemptEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AttemptStartedEvent is published when a new attempt is created.
type AttemptStartedEvent struct {
	AttemptID uint      `json:"attempt_id"`
	QuizID    uint      `json:"quiz_id"`
	QuizTitle string    `json:"quiz_title"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}

// AttemptCompletedEvent is published once per attempt, on the single
// transition to the completed state.
type AttemptCompletedEvent struct {
	AttemptID   uint                    `json:"attempt_id"`
	QuizID      uint                    `json:"quiz_id"`
	StudentID   string                  `json:"student_id"`
	EndReason   models.AttemptEndReason `json:"end_reason"`
	Score       int                     `json:"score"`
	MaxScore    int                     `json:"max_score"`
	Percentage  float64                 `json:"percentage"`
	CompletedAt time.Time               `json:"completed_at"`
}

// NewAttemptStartedEvent builds the broker event for a freshly created attempt.
func NewAttemptStartedEvent(attempt *models.QuizAttempt, quiz *models.Quiz) *AttemptEvent {
	return &AttemptEvent{
		ID:        GenerateEventID(),
		Type:      EventAttemptStarted,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Version:   "1.0",
		Data: AttemptStartedEvent{
			AttemptID: attempt.ID,
			QuizID:    quiz.ID,
			QuizTitle: quiz.Title,
			StudentID: attempt.StudentID,
			StartedAt: attempt.StartedAt,
			Deadline:  attempt.Deadline(quiz.TimeLimitMinutes),
		},
	}
}

// NewAttemptResumedEvent builds the broker event for an attempt picked
// back up by the student. The deadline is unchanged from the original
// start.
func NewAttemptResumedEvent(attempt *models.QuizAttempt, quiz *models.Quiz) *AttemptEvent {
	return &AttemptEvent{
		ID:        GenerateEventID(),
		Type:      EventAttemptResumed,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Version:   "1.0",
		Data: AttemptStartedEvent{
			AttemptID: attempt.ID,
			QuizID:    quiz.ID,
			QuizTitle: quiz.Title,
			StudentID: attempt.StudentID,
			StartedAt: attempt.StartedAt,
			Deadline:  attempt.Deadline(quiz.TimeLimitMinutes),
		},
	}
}

// NewAttemptCompletedEvent builds the broker event for a completed and
// graded attempt. The expired variant uses the same payload with a
// different event type.
func NewAttemptCompletedEvent(attempt *models.QuizAttempt, result *models.GradedResult, reason models.AttemptEndReason) *AttemptEvent {
	eventType := EventAttemptCompleted
	if reason == models.AttemptEndReasonTimeout {
		eventType = EventAttemptExpired
	}

	completedAt := time.Now()
	if attempt.CompletedAt != nil {
		completedAt = *attempt.CompletedAt
	}

	return &AttemptEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Version:   "1.0",
		Data: AttemptCompletedEvent{
			AttemptID:   attempt.ID,
			QuizID:      attempt.QuizID,
			StudentID:   attempt.StudentID,
			EndReason:   reason,
			Score:       result.Score,
			MaxScore:    result.MaxScore,
			Percentage:  result.Percentage,
			CompletedAt: completedAt,
		},
	}
}

// GenerateEventID returns a unique id for a broker event.
func GenerateEventID() string {
	return uuid.NewString()
}
