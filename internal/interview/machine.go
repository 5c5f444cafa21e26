package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/logger"
	"github.com/spigell/prism/internal/store"
)

var (
	// ErrEmptyAnswer rejects blank answers.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrFinished is returned when answering a session that has no questions left.
	ErrFinished = errors.New("interview is finished")
)

// Turn kinds reported to the Observer.
const (
	KindAnswer   = "answer"
	KindFollowUp = "follow_up"
)

// Assessor decides whether an answer needs elaboration.
type Assessor interface {
	NeedsElaboration(ctx context.Context, answer string) (bool, error)
}

// FollowUpGenerator produces one follow-up question for a thin answer.
type FollowUpGenerator interface {
	Generate(ctx context.Context, question, answer string) (string, error)
}

// Persister stores sessions. Load returns store.ErrNotFound when nothing can be resumed;
// an empty id selects the active session.
type Persister interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Complete(ctx context.Context, s *Session) error
}

// Observer is notified about recorded turns.
type Observer interface {
	ObserveTurn(kind string)
	ObserveFollowUp()
}

// Prompt is what the caller should present next.
type Prompt struct {
	Phase        string
	Instructions string
	Question     string
	// Number is the 1-based index of the top-level question within its phase.
	Number   int
	FollowUp bool
	Done     bool
}

// Machine is the interview transition function. It holds no session state itself.
type Machine struct {
	plan      *Plan
	assessor  Assessor
	followUps FollowUpGenerator
	persister Persister
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

// Option customizes a Machine.
type Option func(*Machine)

// WithObserver reports turns to o.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observer = o }
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine wires the interview collaborators together.
func NewMachine(plan *Plan, assessor Assessor, followUps FollowUpGenerator, persister Persister, log *zap.Logger, opts ...Option) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Machine{
		plan:      plan,
		assessor:  assessor,
		followUps: followUps,
		persister: persister,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a new session and makes it the active one.
func (m *Machine) Start(ctx context.Context) (*Session, error) {
	s := newSession(m.now())
	m.normalize(&s.Cursor)
	if err := m.persister.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}
	logger.WithSession(m.logger, s.ID).Info("interview session started")
	return s, nil
}

// Resume loads the session with the given id, or the active one when id is empty.
// Missing state is not an error: a fresh session is started instead.
func (m *Machine) Resume(ctx context.Context, id string) (*Session, error) {
	s, err := m.persister.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Info("no prior session found, starting a new interview", zap.String("requested_id", id))
		return m.Start(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	m.normalize(&s.Cursor)
	logger.WithSession(m.logger, s.ID).Info("interview session resumed",
		zap.Int("phase_index", s.Cursor.Phase),
		zap.Int("question_index", s.Cursor.Question),
		zap.Int("follow_ups", s.Cursor.FollowUps),
		zap.Int("turns", len(s.Transcript)),
	)
	return s, nil
}

// Current returns the prompt for the session's cursor.
func (m *Machine) Current(s *Session) Prompt {
	c := s.Cursor
	m.normalize(&c)
	if s.Status == StatusCompleted || c.Phase >= m.plan.Len() {
		return Prompt{Done: true}
	}

	phase := m.plan.Phases[c.Phase]
	p := Prompt{
		Phase:        phase.Name,
		Instructions: phase.Instructions,
		Question:     phase.Questions[c.Question],
		Number:       c.Question + 1,
	}
	if c.FollowUps > 0 {
		p.Question = s.Pending
		p.FollowUp = true
	}
	return p
}

// Apply records answer against the active question and moves the cursor.
// On any failure the input session is returned unchanged with the error, so the
// same answer can be submitted again.
func (m *Machine) Apply(ctx context.Context, s *Session, answer string) (*Session, Prompt, error) {
	if s == nil {
		return nil, Prompt{}, errors.New("session is nil")
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s, m.Current(s), ErrEmptyAnswer
	}

	current := m.Current(s)
	if current.Done {
		return s, current, ErrFinished
	}

	next := s.Clone()
	m.normalize(&next.Cursor)
	log := logger.WithSession(m.logger, next.ID).With(zap.String(logger.FieldPhase, current.Phase))

	next.Transcript = append(next.Transcript, Turn{
		Question: current.Question,
		Answer:   answer,
		Phase:    current.Phase,
	})

	followUpAsked := false
	if next.Cursor.FollowUps >= MaxFollowUps {
		log.Debug("follow-up limit reached, advancing", zap.Int("follow_ups", next.Cursor.FollowUps))
		m.advance(next)
	} else {
		needs, err := m.assessor.NeedsElaboration(ctx, answer)
		if err != nil {
			log.Warn("answer assessment failed, cursor unchanged", zap.Error(err))
			return s, m.Current(s), err
		}

		if needs {
			topLevel := m.plan.Phases[next.Cursor.Phase].Questions[next.Cursor.Question]
			followUp, err := m.followUps.Generate(ctx, topLevel, answer)
			if err != nil {
				log.Warn("follow-up generation failed, cursor unchanged", zap.Error(err))
				return s, m.Current(s), err
			}
			next.Pending = followUp
			next.Cursor.FollowUps++
			followUpAsked = true
		} else {
			m.advance(next)
		}
	}

	next.UpdatedAt = m.now()
	if err := m.persister.Save(ctx, next); err != nil {
		log.Warn("persisting session failed, cursor unchanged", zap.Error(err))
		return s, m.Current(s), fmt.Errorf("persist session: %w", err)
	}

	if m.observer != nil {
		kind := KindAnswer
		if current.FollowUp {
			kind = KindFollowUp
		}
		m.observer.ObserveTurn(kind)
		if followUpAsked {
			m.observer.ObserveFollowUp()
		}
	}

	log.Debug("turn recorded",
		zap.Int("turns", len(next.Transcript)),
		zap.Int("phase_index", next.Cursor.Phase),
		zap.Int("question_index", next.Cursor.Question),
		zap.Int("follow_ups", next.Cursor.FollowUps),
	)
	return next, m.Current(next), nil
}

// Checkpoint persists the session as it is.
func (m *Machine) Checkpoint(ctx context.Context, s *Session) error {
	if err := m.persister.Save(ctx, s); err != nil {
		return fmt.Errorf("checkpoint session: %w", err)
	}
	logger.WithSession(m.logger, s.ID).Info("interview progress saved", zap.Int("turns", len(s.Transcript)))
	return nil
}

// Finish completes a session whose plan is exhausted and stores its transcript.
func (m *Machine) Finish(ctx context.Context, s *Session) (*Session, error) {
	if !m.Current(s).Done {
		return s, errors.New("interview still has unanswered questions")
	}

	done := s.Clone()
	done.Status = StatusCompleted
	done.UpdatedAt = m.now()
	if err := m.persister.Complete(ctx, done); err != nil {
		return s, fmt.Errorf("complete session: %w", err)
	}

	logger.WithSession(m.logger, done.ID).Info("interview completed", zap.Int("turns", len(done.Transcript)))
	return done, nil
}

// Progress returns the number of answered top-level questions and the total.
func (m *Machine) Progress(s *Session) (int, int) {
	c := s.Cursor
	m.normalize(&c)
	answered := 0
	for i := 0; i < c.Phase && i < m.plan.Len(); i++ {
		answered += len(m.plan.Phases[i].Questions)
	}
	if c.Phase < m.plan.Len() {
		answered += c.Question
	}
	return answered, m.plan.Questions()
}

func (m *Machine) advance(s *Session) {
	s.Cursor.Question++
	s.Cursor.FollowUps = 0
	s.Pending = ""
	m.normalize(&s.Cursor)
}

// normalize moves an exhausted cursor to the next phase that has questions.
func (m *Machine) normalize(c *Cursor) {
	if c.Phase < 0 {
		c.Phase = 0
	}
	for c.Phase < m.plan.Len() && c.Question >= len(m.plan.Phases[c.Phase].Questions) {
		c.Phase++
		c.Question = 0
		c.FollowUps = 0
	}
	if c.Phase >= m.plan.Len() {
		c.Phase = m.plan.Len()
		c.Question = 0
		c.FollowUps = 0
	}
}
