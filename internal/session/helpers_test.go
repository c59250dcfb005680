package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/model"
)

// newTestEngine wires a manager against the in-memory store with a manual
// clock source and silent tickers.
func newTestEngine(questionCount, limitMinutes int, passingScore float64) (*Manager, *memStore, *manualSource, *model.ExamSnapshot) {
	src := newManualSource(time.Unix(1700000000, 0))
	snap := testSnapshot(questionCount, limitMinutes, passingScore)
	store := newMemStore(src, snap)
	mgr := NewManager(store, nil, zerolog.Nop(), Options{
		Source:    src,
		NewTicker: func() Ticker { return newManualTicker() },
	})
	return mgr, store, src, snap
}

// manualSource is a hand-cranked wall clock.
type manualSource struct {
	mu  sync.Mutex
	now time.Time
}

func newManualSource(start time.Time) *manualSource {
	return &manualSource{now: start}
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

// manualTicker satisfies Ticker without ever firing on its own; tests drive
// the session's tick handler directly.
type manualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	started bool
	stopped bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (t *manualTicker) Start(time.Duration) <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return t.ch
}

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.ch)
	}
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// memStore is an in-memory Store with switchable failure injection.
type memStore struct {
	mu   sync.Mutex
	src  Source
	snap *model.ExamSnapshot

	attempts map[uuid.UUID]*model.ExamAttempt
	answers  map[uuid.UUID]map[uuid.UUID]model.UserAnswer

	failCreate   bool
	failRecord   bool
	failComplete bool
	failAbandon  bool

	completeCalls int
	completedOK   int
	abandonCalls  int
}

func newMemStore(src Source, snap *model.ExamSnapshot) *memStore {
	return &memStore{
		src:      src,
		snap:     snap,
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
		answers:  make(map[uuid.UUID]map[uuid.UUID]model.UserAnswer),
	}
}

func (s *memStore) setFail(create, record, complete, abandon bool) {
	s.mu.Lock()
	s.failCreate, s.failRecord, s.failComplete, s.failAbandon = create, record, complete, abandon
	s.mu.Unlock()
}

func (s *memStore) CreateAttempt(_ context.Context, examID, userID uuid.UUID, mode model.AttemptMode) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, &StorageError{Op: "create attempt", Err: errors.New("injected")}
	}
	now := s.src.Now()
	a := &model.ExamAttempt{
		ID:             uuid.New(),
		UserID:         userID,
		ExamID:         examID,
		Mode:           mode,
		Status:         model.AttemptInProgress,
		TotalQuestions: len(s.snap.Questions),
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mode == model.ModeExam {
		limit := s.snap.Exam.TimeLimitMinutes
		a.TimeLimitMinutes = &limit
	}
	s.attempts[a.ID] = a
	s.answers[a.ID] = make(map[uuid.UUID]model.UserAnswer)
	out := *a
	return &out, nil
}

func (s *memStore) FindInProgress(_ context.Context, userID, examID uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.UserID == userID && a.ExamID == examID && a.Status == model.AttemptInProgress {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) AbandonAttempt(_ context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonCalls++
	if s.failAbandon {
		return &StorageError{Op: "abandon attempt", Err: errors.New("injected")}
	}
	a, ok := s.attempts[attemptID]
	if !ok {
		return &StorageError{Op: "abandon attempt", Err: fmt.Errorf("attempt %s not found", attemptID)}
	}
	if a.Status != model.AttemptInProgress {
		return &StorageError{Op: "abandon attempt", Err: errors.New("attempt not in progress")}
	}
	now := s.src.Now()
	a.Status = model.AttemptAbandoned
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

func (s *memStore) RecordAnswer(_ context.Context, answer *model.UserAnswer) (*model.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecord {
		return nil, &StorageError{Op: "record answer", Err: errors.New("injected")}
	}
	byQuestion, ok := s.answers[answer.AttemptID]
	if !ok {
		return nil, &StorageError{Op: "record answer", Err: fmt.Errorf("attempt %s not found", answer.AttemptID)}
	}
	byQuestion[answer.QuestionID] = *answer
	out := *answer
	return &out, nil
}

func (s *memStore) CompleteAttempt(_ context.Context, attemptID uuid.UUID, summary model.AttemptSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++
	if s.failComplete {
		return &StorageError{Op: "complete attempt", Err: errors.New("injected")}
	}
	a, ok := s.attempts[attemptID]
	if !ok {
		return &StorageError{Op: "complete attempt", Err: fmt.Errorf("attempt %s not found", attemptID)}
	}
	if a.Status != model.AttemptInProgress {
		return &StorageError{Op: "complete attempt", Err: errors.New("attempt not in progress")}
	}
	a.Status = model.AttemptCompleted
	a.CompletedAt = &summary.CompletedAt
	a.CorrectCount = &summary.CorrectCount
	a.ScorePercent = &summary.ScorePercent
	a.Passed = &summary.Passed
	a.TimeSpentSeconds = &summary.TimeSpentSeconds
	a.UpdatedAt = summary.CompletedAt
	s.completedOK++
	return nil
}

func (s *memStore) LoadAttempt(_ context.Context, attemptID uuid.UUID) (*model.ExamAttempt, []model.Question, []model.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, nil, nil, &StorageError{Op: "load attempt", Err: fmt.Errorf("attempt %s not found", attemptID)}
	}
	out := *a
	var answers []model.UserAnswer
	for i := range s.snap.Questions {
		if ua, ok := s.answers[attemptID][s.snap.Questions[i].ID]; ok {
			answers = append(answers, ua)
		}
	}
	return &out, s.snap.Questions, answers, nil
}

func (s *memStore) attemptStatus(attemptID uuid.UUID) model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[attemptID]; ok {
		return a.Status
	}
	return ""
}

func (s *memStore) counters() (completeCalls, completedOK, abandonCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeCalls, s.completedOK, s.abandonCalls
}

// recordingNotifier captures completion notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	completed []uuid.UUID
}

func (n *recordingNotifier) AttemptCompleted(_ context.Context, attempt *model.ExamAttempt, _ model.AttemptSummary) {
	n.mu.Lock()
	n.completed = append(n.completed, attempt.ID)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed)
}

// testSnapshot builds an exam with one knowledge area and questionCount
// four-choice single-answer questions (first answer correct).
func testSnapshot(questionCount, limitMinutes int, passingScore float64) *model.ExamSnapshot {
	examID := uuid.New()
	area := model.KnowledgeArea{ID: uuid.New(), ExamID: examID, Name: "General", WeightPercent: 100}
	snap := &model.ExamSnapshot{
		Exam: model.Exam{
			ID:               examID,
			Slug:             "test-exam",
			Title:            "Test Exam",
			PassingScore:     passingScore,
			TimeLimitMinutes: limitMinutes,
			QuestionCount:    questionCount,
			Active:           true,
		},
		Areas: []model.KnowledgeArea{area},
	}
	for i := 0; i < questionCount; i++ {
		q := model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			AreaID:        area.ID,
			Position:      i,
			Text:          fmt.Sprintf("question %d", i),
			Difficulty:    model.DifficultyMedium,
			MinSelections: 1,
		}
		for j := 0; j < 4; j++ {
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

func correctIDs(q model.Question) []uuid.UUID { return q.CorrectAnswerIDs() }

func wrongIDs(q model.Question) []uuid.UUID {
	for _, a := range q.Answers {
		if !a.IsCorrect {
			return []uuid.UUID{a.ID}
		}
	}
	return nil
}
