package interview

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/prism/internal/store"
)

// lengthAssessor mirrors the real cheap path: short answers need elaboration,
// long ones are judged by verdict.
type lengthAssessor struct {
	verdict bool
	err     error
	calls   int
}

func (a *lengthAssessor) NeedsElaboration(_ context.Context, answer string) (bool, error) {
	a.calls++
	if a.err != nil {
		return false, a.err
	}
	if len(strings.Fields(answer)) < 30 {
		return true, nil
	}
	return a.verdict, nil
}

type countingGenerator struct {
	err   error
	calls []string
}

func (g *countingGenerator) Generate(_ context.Context, question, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.calls = append(g.calls, question)
	return fmt.Sprintf("follow-up %d", len(g.calls)), nil
}

type failingPersister struct {
	Persister
	fail bool
}

func (p *failingPersister) Save(ctx context.Context, s *Session) error {
	if p.fail {
		return errors.New("disk full")
	}
	return p.Persister.Save(ctx, s)
}

type countingObserver struct {
	turns     map[string]int
	followUps int
}

func (o *countingObserver) ObserveTurn(kind string) { o.turns[kind]++ }
func (o *countingObserver) ObserveFollowUp() { o.followUps++ }

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func testPlan(questions ...int) *Plan {
	plan := &Plan{}
	for i, n := range questions {
		phase := Phase{Name: fmt.Sprintf("phase-%d", i), Instructions: fmt.Sprintf("instructions %d", i)}
		for j := 0; j < n; j++ {
			phase.Questions = append(phase.Questions, fmt.Sprintf("p%d-q%d", i, j))
		}
		plan.Phases = append(plan.Phases, phase)
	}
	return plan
}

func shortAnswer() string { return "I like it a lot" }

func longAnswer() string { return strings.TrimSpace(strings.Repeat("detail ", 50)) }

type fixture struct {
	machine   *Machine
	assessor  *lengthAssessor
	generator *countingGenerator
	store     *store.Memory
	journal   *Journal
	observer  *countingObserver
}

func newFixture(t *testing.T, plan *Plan) *fixture {
	t.Helper()
	f := &fixture{
		assessor:  &lengthAssessor{},
		generator: &countingGenerator{},
		store:     store.NewMemory(),
		observer:  &countingObserver{turns: map[string]int{}},
	}
	f.journal = NewJournal(f.store, filepath.Join(t.TempDir(), "interview_progress.json"), nil)
	f.machine = NewMachine(plan, f.assessor, f.generator, f.journal, nil,
		WithClock(fixedClock()), WithObserver(f.observer))
	return f
}

func mustApply(t *testing.T, m *Machine, s *Session, answer string) (*Session, Prompt) {
	t.Helper()
	next, prompt, err := m.Apply(context.Background(), s, answer)
	if err != nil {
		t.Fatalf("apply %q: %v", answer, err)
	}
	return next, prompt
}

func TestApplyFollowUpScenario(t *testing.T) {
	f := newFixture(t, testPlan(2))
	s, err := f.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	s, p := mustApply(t, f.machine, s, shortAnswer())
	if !p.FollowUp || p.Question != "follow-up 1" || s.Cursor.FollowUps != 1 {
		t.Fatalf("expected first follow-up, got prompt %+v cursor %+v", p, s.Cursor)
	}

	s, p = mustApply(t, f.machine, s, shortAnswer())
	if !p.FollowUp || p.Question != "follow-up 2" || s.Cursor.FollowUps != 2 {
		t.Fatalf("expected second follow-up, got prompt %+v cursor %+v", p, s.Cursor)
	}

	callsBefore := f.assessor.calls
	s, p = mustApply(t, f.machine, s, longAnswer())
	if f.assessor.calls != callsBefore {
		t.Fatalf("assessor must not be consulted once the follow-up cap is reached")
	}
	if p.FollowUp || p.Question != "p0-q1" || p.Number != 2 {
		t.Fatalf("expected second question, got %+v", p)
	}
	if s.Cursor != (Cursor{Phase: 0, Question: 1, FollowUps: 0}) {
		t.Fatalf("unexpected cursor %+v", s.Cursor)
	}

	q1Turns := 0
	for _, turn := range s.Transcript {
		if turn.Phase == "phase-0" {
			q1Turns++
		}
	}
	if q1Turns != 3 {
		t.Fatalf("expected 3 turns for the first question, got %d", q1Turns)
	}
	wantQuestions := []string{"p0-q0", "follow-up 1", "follow-up 2"}
	for i, want := range wantQuestions {
		if s.Transcript[i].Question != want {
			t.Fatalf("turn %d: expected question %q, got %q", i, want, s.Transcript[i].Question)
		}
	}
	if !reflect.DeepEqual(f.generator.calls, []string{"p0-q0", "p0-q0"}) {
		t.Fatalf("follow-ups must be generated from the top-level question, got %v", f.generator.calls)
	}

	f.assessor.verdict = false
	s, p = mustApply(t, f.machine, s, longAnswer())
	if !p.Done {
		t.Fatalf("expected interview to be done, got %+v", p)
	}
	if s.Cursor != (Cursor{Phase: 1}) {
		t.Fatalf("expected terminal cursor at phase 1, got %+v", s.Cursor)
	}

	if f.observer.turns[KindAnswer] != 2 || f.observer.turns[KindFollowUp] != 2 || f.observer.followUps != 2 {
		t.Fatalf("unexpected observations: %+v follow-ups=%d", f.observer.turns, f.observer.followUps)
	}
}

func TestApplyNeverExceedsFollowUpCap(t *testing.T) {
	f := newFixture(t, testPlan(3, 2))
	f.assessor.verdict = true
	s, err := f.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	prevPhase := 0
	prevLen := 0
	var prevTranscript []Turn
	for i := 0; i < 100; i++ {
		if f.machine.Current(s).Done {
			break
		}
		answer := shortAnswer()
		if i%3 == 0 {
			answer = longAnswer()
		}
		s, _ = mustApply(t, f.machine, s, answer)

		if s.Cursor.FollowUps < 0 || s.Cursor.FollowUps > MaxFollowUps {
			t.Fatalf("follow-up counter out of range: %+v", s.Cursor)
		}
		if s.Cursor.Phase < prevPhase {
			t.Fatalf("phase moved backwards: %d -> %d", prevPhase, s.Cursor.Phase)
		}
		if s.Cursor.Phase != prevPhase && s.Cursor.Question != 0 {
			t.Fatalf("question index must reset on phase change: %+v", s.Cursor)
		}
		if len(s.Transcript) != prevLen+1 {
			t.Fatalf("expected exactly one appended turn, got %d -> %d", prevLen, len(s.Transcript))
		}
		if !reflect.DeepEqual(s.Transcript[:prevLen], prevTranscript) {
			t.Fatalf("earlier turns changed")
		}

		prevPhase = s.Cursor.Phase
		prevLen = len(s.Transcript)
		prevTranscript = append([]Turn(nil), s.Transcript...)
	}

	if !f.machine.Current(s).Done {
		t.Fatalf("interview did not finish")
	}
	// 5 questions, each answered once plus two follow-ups.
	if len(s.Transcript) != 15 {
		t.Fatalf("expected 15 turns, got %d", len(s.Transcript))
	}
}

func TestApplyFailuresLeaveSessionUntouched(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
	}{
		{name: "assessor", setup: func(f *fixture) { f.assessor.err = errors.New("llm unavailable") }},
		{name: "generator", setup: func(f *fixture) { f.generator.err = errors.New("llm unavailable") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, testPlan(2))
			s, err := f.machine.Start(context.Background())
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			before := s.Clone()
			tc.setup(f)

			got, p, err := f.machine.Apply(context.Background(), s, shortAnswer())
			if err == nil {
				t.Fatalf("expected error")
			}
			if got != s || !reflect.DeepEqual(s, before) {
				t.Fatalf("session must be unchanged on failure")
			}
			if p.Question != "p0-q0" || p.FollowUp {
				t.Fatalf("expected the top-level question to stay current, got %+v", p)
			}

			stored, err := f.journal.Load(context.Background(), s.ID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(stored.Transcript) != 0 {
				t.Fatalf("failed turn must not be persisted")
			}

			f.assessor.err = nil
			f.generator.err = nil
			next, p, err := f.machine.Apply(context.Background(), s, shortAnswer())
			if err != nil {
				t.Fatalf("retrying the same answer failed: %v", err)
			}
			if !p.FollowUp || len(next.Transcript) != 1 {
				t.Fatalf("unexpected state after retry: %+v %+v", p, next.Cursor)
			}
		})
	}
}

func TestApplyPersistFailureLeavesSessionUntouched(t *testing.T) {
	plan := testPlan(1)
	persister := &failingPersister{Persister: NewJournal(store.NewMemory(), "", nil)}
	m := NewMachine(plan, &lengthAssessor{}, &countingGenerator{}, persister, nil)

	s, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	before := s.Clone()

	persister.fail = true
	got, _, err := m.Apply(context.Background(), s, shortAnswer())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected persist error, got %v", err)
	}
	if !reflect.DeepEqual(got, before) {
		t.Fatalf("session changed despite persist failure")
	}
}

func TestApplyRejectsEmptyAndFinished(t *testing.T) {
	f := newFixture(t, testPlan(1))
	s, err := f.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := f.machine.Apply(context.Background(), s, "   \n"); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
	if f.assessor.calls != 0 {
		t.Fatalf("blank answers must not reach the assessor")
	}

	f.assessor.verdict = false
	s, p := mustApply(t, f.machine, s, longAnswer())
	if !p.Done {
		t.Fatalf("expected done, got %+v", p)
	}
	if _, _, err := f.machine.Apply(context.Background(), s, longAnswer()); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

func TestEmptyPhasesAreSkipped(t *testing.T) {
	f := newFixture(t, testPlan(0, 1, 0, 0, 1, 0))
	f.assessor.verdict = false

	s, err := f.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Cursor.Phase != 1 {
		t.Fatalf("expected the first empty phase to be skipped, got %+v", s.Cursor)
	}
	if p := f.machine.Current(s); p.Phase != "phase-1" || p.Question != "p1-q0" {
		t.Fatalf("unexpected prompt %+v", p)
	}

	s, p := mustApply(t, f.machine, s, longAnswer())
	if p.Phase != "phase-4" || s.Cursor != (Cursor{Phase: 4}) {
		t.Fatalf("expected to land on phase-4, got %+v %+v", p, s.Cursor)
	}

	s, p = mustApply(t, f.machine, s, longAnswer())
	if !p.Done || s.Cursor.Phase != 6 {
		t.Fatalf("expected terminal cursor, got %+v %+v", p, s.Cursor)
	}

	answered, total := f.machine.Progress(s)
	if answered != 2 || total != 2 {
		t.Fatalf("unexpected progress %d/%d", answered, total)
	}
}

func TestResumeIsDeterministic(t *testing.T) {
	answers := []string{shortAnswer(), longAnswer(), shortAnswer(), shortAnswer(), shortAnswer(), longAnswer()}
	verdicts := []bool{false, true, false, false, false, false}

	run := func(f *fixture, s *Session, from, to int) *Session {
		for i := from; i < to; i++ {
			f.assessor.verdict = verdicts[i]
			s, _ = mustApply(t, f.machine, s, answers[i])
		}
		return s
	}

	plan := testPlan(2, 2)

	uninterrupted := newFixture(t, plan)
	s, err := uninterrupted.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ID = "fixed"
	want := run(uninterrupted, s, 0, len(answers))

	first := newFixture(t, plan)
	s, err = first.machine.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ID = "fixed"
	s = run(first, s, 0, 3)

	// A fresh process sharing only the store.
	second := newFixture(t, plan)
	second.store = first.store
	second.journal = NewJournal(first.store, "", nil)
	second.machine = NewMachine(plan, second.assessor, second.generator, second.journal, nil, WithClock(fixedClock()))
	second.generator.calls = append(second.generator.calls, first.generator.calls...)

	resumed, err := second.machine.Resume(context.Background(), "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !reflect.DeepEqual(resumed, s) {
		t.Fatalf("resumed session differs:\n got %+v\nwant %+v", resumed, s)
	}

	got := run(second, resumed, 3, len(answers))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("resumed run diverged:\n got %+v\nwant %+v", got, want)
	}
}

func TestResumeMissingStateStartsFresh(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	plan := testPlan(1)
	journal := NewJournal(store.NewMemory(), filepath.Join(t.TempDir(), "progress.json"), nil)
	m := NewMachine(plan, &lengthAssessor{}, &countingGenerator{}, journal, zap.New(core))

	s, err := m.Resume(context.Background(), "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.ID == "" || len(s.Transcript) != 0 || s.Cursor != (Cursor{}) {
		t.Fatalf("expected a fresh session, got %+v", s)
	}
	if logs.FilterMessage("no prior session found, starting a new interview").Len() != 1 {
		t.Fatalf("expected fresh-start log entry")
	}
}

func TestCheckpointAndFinish(t *testing.T) {
	f := newFixture(t, testPlan(1))
	ctx := context.Background()

	s, err := f.machine.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s, _ = mustApply(t, f.machine, s, shortAnswer())

	if _, err := f.machine.Finish(ctx, s); err == nil {
		t.Fatalf("finishing an unfinished interview must fail")
	}
	if err := f.machine.Checkpoint(ctx, s); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	f.assessor.verdict = false
	s, _ = mustApply(t, f.machine, s, longAnswer())

	done, err := f.machine.Finish(ctx, s)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.Status != StatusCompleted || !f.machine.Current(done).Done {
		t.Fatalf("expected completed session, got %+v", done)
	}

	turns, err := LoadConversation(ctx, f.store)
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if !reflect.DeepEqual(turns, done.Transcript) {
		t.Fatalf("stored conversation mismatch: %+v", turns)
	}

	if _, err := f.store.Get(ctx, store.CollectionSessions, store.ActiveSessionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected active pointer to be cleared, got %v", err)
	}
}
