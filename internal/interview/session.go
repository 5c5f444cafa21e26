package interview

import (
	"time"

	"github.com/google/uuid"
)

// MaxFollowUps caps generated follow-ups per top-level question.
const MaxFollowUps = 2

// Status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Cursor points into the plan. A follow-up is active while FollowUps > 0.
type Cursor struct {
	Phase     int `json:"phase"`
	Question  int `json:"question"`
	FollowUps int `json:"follow_ups"`
}

// Turn is one recorded question and answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Phase    string `json:"phase"`
}

// Session is one interview in progress. Machine never mutates a session in place.
type Session struct {
	ID         string    `json:"id"`
	Cursor     Cursor    `json:"cursor"`
	Pending    string    `json:"pending"`
	Transcript []Turn    `json:"transcript"`
	Status     Status    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Transcript: []Turn{},
		Status:     StatusActive,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Transcript = make([]Turn, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	return &c
}
