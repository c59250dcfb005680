package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/session"
)

type manualSource struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualSource) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualSource) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

type manualTicker struct {
	ch   chan time.Time
	once sync.Once
}

func (t *manualTicker) Start(time.Duration) <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()                                { t.once.Do(func() { close(t.ch) }) }

// reapStore is a minimal in-memory session.Store for reaper sweeps.
type reapStore struct {
	mu           sync.Mutex
	src          session.Source
	limit        int
	questions    []model.Question
	attempts     map[uuid.UUID]*model.ExamAttempt
	failComplete bool
}

func newReapStore(src session.Source, limit int, questions []model.Question) *reapStore {
	return &reapStore{
		src:       src,
		limit:     limit,
		questions: questions,
		attempts:  make(map[uuid.UUID]*model.ExamAttempt),
	}
}

func (s *reapStore) setFailComplete(fail bool) {
	s.mu.Lock()
	s.failComplete = fail
	s.mu.Unlock()
}

func (s *reapStore) status(attemptID uuid.UUID) model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[attemptID]; ok {
		return a.Status
	}
	return ""
}

func (s *reapStore) CreateAttempt(_ context.Context, examID, userID uuid.UUID, mode model.AttemptMode) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.src.Now()
	a := &model.ExamAttempt{
		ID:             uuid.New(),
		UserID:         userID,
		ExamID:         examID,
		Mode:           mode,
		Status:         model.AttemptInProgress,
		TotalQuestions: len(s.questions),
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mode == model.ModeExam {
		limit := s.limit
		a.TimeLimitMinutes = &limit
	}
	s.attempts[a.ID] = a
	out := *a
	return &out, nil
}

func (s *reapStore) FindInProgress(context.Context, uuid.UUID, uuid.UUID) (*model.ExamAttempt, error) {
	return nil, nil
}

func (s *reapStore) AbandonAttempt(_ context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok || a.Status != model.AttemptInProgress {
		return session.ErrInvalidState
	}
	now := s.src.Now()
	a.Status = model.AttemptAbandoned
	a.CompletedAt = &now
	return nil
}

func (s *reapStore) RecordAnswer(_ context.Context, answer *model.UserAnswer) (*model.UserAnswer, error) {
	out := *answer
	return &out, nil
}

func (s *reapStore) CompleteAttempt(_ context.Context, attemptID uuid.UUID, summary model.AttemptSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failComplete {
		return &session.StorageError{Op: "complete attempt", Err: errors.New("injected")}
	}
	a, ok := s.attempts[attemptID]
	if !ok || a.Status != model.AttemptInProgress {
		return session.ErrInvalidState
	}
	a.Status = model.AttemptCompleted
	a.CompletedAt = &summary.CompletedAt
	a.CorrectCount = &summary.CorrectCount
	a.ScorePercent = &summary.ScorePercent
	a.Passed = &summary.Passed
	a.TimeSpentSeconds = &summary.TimeSpentSeconds
	return nil
}

func (s *reapStore) LoadAttempt(_ context.Context, attemptID uuid.UUID) (*model.ExamAttempt, []model.Question, []model.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, nil, nil, session.ErrInvalidState
	}
	out := *a
	return &out, s.questions, nil, nil
}

func reapSnapshot(limitMinutes int) *model.ExamSnapshot {
	examID := uuid.New()
	area := model.KnowledgeArea{ID: uuid.New(), ExamID: examID, Name: "General", WeightPercent: 100}
	snap := &model.ExamSnapshot{
		Exam: model.Exam{
			ID:               examID,
			Slug:             "reaper-exam",
			Title:            "Reaper Exam",
			PassingScore:     50,
			TimeLimitMinutes: limitMinutes,
			QuestionCount:    2,
			Active:           true,
		},
		Areas: []model.KnowledgeArea{area},
	}
	for i := 0; i < 2; i++ {
		q := model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			AreaID:        area.ID,
			Position:      i,
			Text:          fmt.Sprintf("question %d", i),
			Difficulty:    model.DifficultyMedium,
			MinSelections: 1,
		}
		for j := 0; j < 2; j++ {
			q.Answers = append(q.Answers, model.Answer{
				ID:         uuid.New(),
				QuestionID: q.ID,
				Letter:     string(rune('A' + j)),
				IsCorrect:  j == 0,
			})
		}
		snap.Questions = append(snap.Questions, q)
	}
	return snap
}

func reaperConfig(idle, grace time.Duration) *config.Config {
	return &config.Config{
		ReaperInterval:     time.Second,
		SessionIdleTimeout: idle,
		TerminalGrace:      grace,
	}
}

func TestReaperSweepRemovesTerminalAfterGrace(t *testing.T) {
	ctx := context.Background()
	src := &manualSource{now: time.Now()}
	snap := reapSnapshot(60)
	store := newReapStore(src, 60, snap.Questions)
	mgr := session.NewManager(store, nil, zerolog.Nop(), session.Options{
		Source:    src,
		NewTicker: func() session.Ticker { return &manualTicker{ch: make(chan time.Time)} },
	})
	defer mgr.Close()

	cand := session.Candidate{ID: uuid.New(), Name: "Avery"}
	s, err := mgr.Start(ctx, cand, snap, model.ModePractice)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	patient := NewSessionReaper(mgr, reaperConfig(time.Hour, time.Hour), zerolog.Nop())
	patient.sweep(ctx)
	if _, ok := mgr.Get(s.AttemptID()); !ok {
		t.Fatal("terminal session dropped before its grace window passed")
	}

	eager := NewSessionReaper(mgr, reaperConfig(time.Hour, 0), zerolog.Nop())
	eager.sweep(ctx)
	if _, ok := mgr.Get(s.AttemptID()); ok {
		t.Fatal("terminal session still registered after grace")
	}
}

func TestReaperSweepAbandonsIdleUntimedOnly(t *testing.T) {
	ctx := context.Background()
	// Sessions born three hours in the past relative to the reaper's clock.
	src := &manualSource{now: time.Now().Add(-3 * time.Hour)}
	snap := reapSnapshot(60)
	store := newReapStore(src, 60, snap.Questions)
	mgr := session.NewManager(store, nil, zerolog.Nop(), session.Options{
		Source:    src,
		NewTicker: func() session.Ticker { return &manualTicker{ch: make(chan time.Time)} },
	})
	defer mgr.Close()

	practice, err := mgr.Start(ctx, session.Candidate{ID: uuid.New(), Name: "Avery"}, snap, model.ModePractice)
	if err != nil {
		t.Fatalf("start practice: %v", err)
	}
	timed, err := mgr.Start(ctx, session.Candidate{ID: uuid.New(), Name: "Blair"}, snap, model.ModeExam)
	if err != nil {
		t.Fatalf("start timed: %v", err)
	}

	w := NewSessionReaper(mgr, reaperConfig(2*time.Hour, time.Hour), zerolog.Nop())
	w.sweep(ctx)

	if got := store.status(practice.AttemptID()); got != model.AttemptAbandoned {
		t.Fatalf("idle practice attempt status = %s, want %s", got, model.AttemptAbandoned)
	}
	if !practice.Terminal() {
		t.Fatal("idle practice session not terminal after sweep")
	}
	if got := store.status(timed.AttemptID()); got != model.AttemptInProgress {
		t.Fatalf("timed attempt status = %s, want %s; the deadline owns timed exits", got, model.AttemptInProgress)
	}
}

func TestReaperSweepRetriesFailedFinalize(t *testing.T) {
	ctx := context.Background()
	src := &manualSource{now: time.Now()}
	snap := reapSnapshot(1)
	store := newReapStore(src, 1, snap.Questions)
	tk := &manualTicker{ch: make(chan time.Time)}
	mgr := session.NewManager(store, nil, zerolog.Nop(), session.Options{
		Source:    src,
		NewTicker: func() session.Ticker { return tk },
	})
	defer mgr.Close()

	s, err := mgr.Start(ctx, session.Candidate{ID: uuid.New(), Name: "Avery"}, snap, model.ModeExam)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	store.setFailComplete(true)
	src.Advance(61 * time.Second)
	tk.ch <- time.Time{}

	deadline := time.Now().Add(2 * time.Second)
	for !s.NeedsFinalizeRetry() {
		if time.Now().After(deadline) {
			t.Fatal("session never flagged a finalize retry after the failed auto-submit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.setFailComplete(false)
	w := NewSessionReaper(mgr, reaperConfig(time.Hour, time.Hour), zerolog.Nop())
	w.sweep(ctx)

	if got := store.status(s.AttemptID()); got != model.AttemptCompleted {
		t.Fatalf("attempt status after retry sweep = %s, want %s", got, model.AttemptCompleted)
	}
	if !s.Terminal() {
		t.Fatal("session not terminal after successful finalize retry")
	}
}
