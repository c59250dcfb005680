package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/scoring"
)

// Store is the persistence collaborator the engine moves attempts and
// answers through. Implementations wrap transport and availability failures
// in *StorageError; the engine performs no in-memory transition until the
// corresponding write is acknowledged, so every failed call can be retried.
type Store interface {
	CreateAttempt(ctx context.Context, examID, userID uuid.UUID, mode model.AttemptMode) (*model.ExamAttempt, error)
	FindInProgress(ctx context.Context, userID, examID uuid.UUID) (*model.ExamAttempt, error)
	AbandonAttempt(ctx context.Context, attemptID uuid.UUID) error
	RecordAnswer(ctx context.Context, answer *model.UserAnswer) (*model.UserAnswer, error)
	CompleteAttempt(ctx context.Context, attemptID uuid.UUID, summary model.AttemptSummary) error
	LoadAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, []model.Question, []model.UserAnswer, error)
}

// Notifier is told about confirmed completions, after the store has
// acknowledged the terminal transition. Implementations are best-effort and
// must not fail the completion.
type Notifier interface {
	AttemptCompleted(ctx context.Context, attempt *model.ExamAttempt, summary model.AttemptSummary)
}

// Candidate identifies the authenticated exam taker. It is handed to the
// engine explicitly on every entry point; the engine never reads identity
// from ambient state.
type Candidate struct {
	ID   uuid.UUID
	Name string
}

// EventType tags the events a session pushes to its subscribers.
type EventType string

const (
	EventTick        EventType = "tick"
	EventAnswerSaved EventType = "answer_saved"
	EventCompleted   EventType = "completed"
	EventAbandoned   EventType = "abandoned"
	EventError       EventType = "error"
)

// Event is one message on a session's subscription channel.
type Event struct {
	Type             EventType             `json:"type"`
	AttemptID        uuid.UUID             `json:"attempt_id"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	RemainingDisplay string                `json:"remaining_display"`
	Tier             TimeTier              `json:"tier"`
	QuestionID       uuid.UUID             `json:"question_id,omitempty"`
	Summary          *model.AttemptSummary `json:"summary,omitempty"`
	Message          string                `json:"message,omitempty"`
}

// QuestionState is the per-question slice of a snapshot, in position order.
type QuestionState struct {
	QuestionID uuid.UUID `json:"question_id"`
	Position   int       `json:"position"`
	Answered   bool      `json:"answered"`
	Flagged    bool      `json:"flagged"`
}

// Snapshot is a read-only copy of the session state for presentation.
type Snapshot struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	UserID           uuid.UUID           `json:"user_id"`
	Mode             model.AttemptMode   `json:"mode"`
	Status           model.AttemptStatus `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	CurrentIndex     int                 `json:"current_index"`
	TotalQuestions   int                 `json:"total_questions"`
	AnsweredCount    int                 `json:"answered_count"`
	FlaggedCount     int                 `json:"flagged_count"`
	Questions        []QuestionState     `json:"questions"`
	Unlimited        bool                `json:"unlimited"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	RemainingDisplay string              `json:"remaining_display"`
	Tier             TimeTier            `json:"tier"`
}

// subscriberBuffer is the per-subscriber event queue depth. A subscriber that
// falls further behind loses ticks, never the session.
const subscriberBuffer = 16

// finalizeTimeout bounds persistence waits for engine-initiated completion,
// which runs outside any request context.
const finalizeTimeout = 10 * time.Second

// Session owns one attempt's SessionData for its whole life: the attempt
// row, the immutable question set, the accumulated answers, the tracker and
// the countdown. All mutations go through one mutex, so a tick-triggered
// auto-submit and a user operation can never interleave on the same attempt.
type Session struct {
	mu sync.Mutex

	candidate Candidate
	snap      *model.ExamSnapshot
	attempt   *model.ExamAttempt
	tracker   *Tracker
	answers   map[uuid.UUID]*model.UserAnswer
	questions map[uuid.UUID]*model.Question

	limited  bool
	deadline time.Time

	clock    Ticker
	src      Source
	store    Store
	notifier Notifier
	log      zerolog.Logger

	result      *scoring.Result
	finalizeErr error
	lastActive  time.Time
	terminalAt  time.Time
	done        chan struct{}
	subs        map[chan Event]struct{}
}

func newSession(cand Candidate, snap *model.ExamSnapshot, attempt *model.ExamAttempt, clock Ticker, src Source, store Store, notifier Notifier, log zerolog.Logger) *Session {
	s := &Session{
		candidate: cand,
		snap:      snap,
		attempt:   attempt,
		tracker:   NewTracker(len(snap.Questions)),
		answers:   make(map[uuid.UUID]*model.UserAnswer),
		questions: make(map[uuid.UUID]*model.Question, len(snap.Questions)),
		clock:     clock,
		src:       src,
		store:     store,
		notifier:  notifier,
		log: log.With().
			Str("attempt_id", attempt.ID.String()).
			Str("exam_id", snap.Exam.ID.String()).
			Logger(),
		lastActive: attempt.StartedAt,
		done:       make(chan struct{}),
		subs:       make(map[chan Event]struct{}),
	}
	for i := range snap.Questions {
		q := &snap.Questions[i]
		s.questions[q.ID] = q
	}
	if attempt.Mode == model.ModeExam && attempt.TimeLimitMinutes != nil {
		s.limited = true
		s.deadline = attempt.StartedAt.Add(time.Duration(*attempt.TimeLimitMinutes) * time.Minute)
	}
	return s
}

// run consumes the clock until it stops. Only exam-mode sessions tick.
func (s *Session) run(ticks <-chan time.Time) {
	for range ticks {
		s.handleTick()
	}
}

func (s *Session) handleTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress || !s.limited {
		return
	}

	remaining := s.remainingLocked()
	secs := int64(remaining / time.Second)
	s.broadcastLocked(Event{
		Type:             EventTick,
		RemainingSeconds: secs,
		RemainingDisplay: FormatRemaining(secs),
		Tier:             ClassifyRemaining(remaining, true),
	})

	if remaining > 0 {
		return
	}

	// Time is up. The trigger is remaining <= 0, not an equality check, so a
	// coarse or delayed tick that overshoots the deadline still finalizes.
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.finalizeLocked(ctx); err != nil {
		// The attempt stays IN_PROGRESS and submit() remains retryable; the
		// clock has nothing left to count either way.
		s.finalizeErr = err
		s.clock.Stop()
		s.log.Error().Err(err).Msg("auto-submit persistence failed, awaiting retry")
		s.broadcastLocked(Event{
			Type:    EventError,
			Message: "your exam ended but the result could not be saved yet; submission will be retried",
		})
		return
	}
	s.log.Info().Msg("attempt auto-submitted at deadline")
}

// remainingLocked computes the countdown clamped at zero. Callers hold mu.
func (s *Session) remainingLocked() time.Duration {
	remaining := s.deadline.Sub(s.src.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// finalizeLocked scores the attempt, persists the terminal transition and,
// only after the store confirms, flips in-memory state and emits the
// completion event. Callers hold mu.
func (s *Session) finalizeLocked(ctx context.Context) error {
	if s.attempt.Status != model.AttemptInProgress {
		return ErrInvalidState
	}

	now := s.src.Now()
	elapsed := now.Sub(s.attempt.StartedAt)
	limit := 0
	if s.limited && s.attempt.TimeLimitMinutes != nil {
		limit = *s.attempt.TimeLimitMinutes
	}
	result := scoring.Score(scoring.Input{
		Questions:        s.snap.Questions,
		Areas:            s.snap.Areas,
		Answers:          s.answerListLocked(),
		ElapsedMinutes:   elapsed.Minutes(),
		TimeLimitMinutes: limit,
		PassingScore:     s.snap.Exam.PassingScore,
	})
	summary := model.AttemptSummary{
		CorrectCount:     result.CorrectCount,
		ScorePercent:     result.ScorePercent,
		Passed:           result.Passed,
		TimeSpentSeconds: int64(elapsed / time.Second),
		CompletedAt:      now,
	}

	if err := s.store.CompleteAttempt(ctx, s.attempt.ID, summary); err != nil {
		return err
	}

	s.attempt.Status = model.AttemptCompleted
	s.attempt.CompletedAt = &summary.CompletedAt
	s.attempt.CorrectCount = &summary.CorrectCount
	s.attempt.ScorePercent = &summary.ScorePercent
	s.attempt.Passed = &summary.Passed
	s.attempt.TimeSpentSeconds = &summary.TimeSpentSeconds
	s.result = result
	s.finalizeErr = nil
	s.terminalAt = now
	s.clock.Stop()
	close(s.done)
	s.broadcastLocked(Event{
		Type:             EventCompleted,
		RemainingSeconds: int64(s.remainingLocked() / time.Second),
		RemainingDisplay: s.displayLocked(),
		Summary:          &summary,
	})
	if s.notifier != nil {
		s.notifier.AttemptCompleted(ctx, s.attempt, summary)
	}
	return nil
}

// Submit completes the attempt on the candidate's request. Valid at any
// remaining time, including after a failed auto-submit at zero.
func (s *Session) Submit(ctx context.Context) (*scoring.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.finalizeLocked(ctx); err != nil {
		return nil, err
	}
	s.log.Info().Float64("score", s.result.ScorePercent).Bool("passed", s.result.Passed).Msg("attempt submitted")
	return s.result, nil
}

// Abandon discards the attempt without scoring it. Already-persisted answers
// stay persisted; the attempt is marked abandoned in the store first and
// in memory only after that confirms.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return ErrInvalidState
	}
	if err := s.store.AbandonAttempt(ctx, s.attempt.ID); err != nil {
		return err
	}
	now := s.src.Now()
	s.attempt.Status = model.AttemptAbandoned
	s.attempt.CompletedAt = &now
	s.terminalAt = now
	s.clock.Stop()
	close(s.done)
	s.broadcastLocked(Event{Type: EventAbandoned})
	s.log.Info().Msg("attempt abandoned")
	return nil
}

// RecordAnswer persists one selection and only then marks the question
// answered. A later selection for the same question supersedes the earlier
// one. Completion is a barrier: once the attempt left IN_PROGRESS this
// returns ErrInvalidState.
func (s *Session) RecordAnswer(ctx context.Context, questionID uuid.UUID, answerIDs []uuid.UUID, timeSpentSeconds int) (*model.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return nil, ErrInvalidState
	}
	q, ok := s.questions[questionID]
	if !ok {
		return nil, fmt.Errorf("%w: question %s is not part of this attempt", ErrOutOfRange, questionID)
	}
	for _, id := range answerIDs {
		if !q.HasAnswer(id) {
			return nil, fmt.Errorf("%w: answer %s does not belong to question %s", ErrOutOfRange, id, questionID)
		}
	}

	rec := &model.UserAnswer{
		AttemptID:        s.attempt.ID,
		QuestionID:       questionID,
		AnswerIDs:        answerIDs,
		IsCorrect:        equalIDSet(answerIDs, q.CorrectAnswerIDs()),
		TimeSpentSeconds: timeSpentSeconds,
		AnsweredAt:       s.src.Now(),
	}
	saved, err := s.store.RecordAnswer(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.answers[questionID] = saved
	s.tracker.MarkAnswered(questionID)
	s.lastActive = s.src.Now()
	s.broadcastLocked(Event{Type: EventAnswerSaved, QuestionID: questionID})
	return saved, nil
}

// Select jumps to a question by zero-based index.
func (s *Session) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return ErrInvalidState
	}
	if err := s.tracker.Select(index); err != nil {
		return err
	}
	s.lastActive = s.src.Now()
	return nil
}

// Next moves forward one question, clamped at the end.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return ErrInvalidState
	}
	s.tracker.Next()
	s.lastActive = s.src.Now()
	return nil
}

// Previous moves back one question, clamped at the start.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return ErrInvalidState
	}
	s.tracker.Previous()
	s.lastActive = s.src.Now()
	return nil
}

// ToggleFlag flips the review flag for a question and returns the new state.
func (s *Session) ToggleFlag(questionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return false, ErrInvalidState
	}
	if _, ok := s.questions[questionID]; !ok {
		return false, fmt.Errorf("%w: question %s is not part of this attempt", ErrOutOfRange, questionID)
	}
	flagged := s.tracker.ToggleFlag(questionID)
	s.lastActive = s.src.Now()
	return flagged, nil
}

// Touch records transport-level liveness (e.g. a websocket ping) so the
// reaper does not count a connected candidate as idle.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.src.Now()
	s.mu.Unlock()
}

// Snapshot returns a read-only copy of the session state with the countdown
// recomputed at call time.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		AttemptID:      s.attempt.ID,
		ExamID:         s.attempt.ExamID,
		UserID:         s.attempt.UserID,
		Mode:           s.attempt.Mode,
		Status:         s.attempt.Status,
		StartedAt:      s.attempt.StartedAt,
		CurrentIndex:   s.tracker.Current(),
		TotalQuestions: len(s.snap.Questions),
		AnsweredCount:  s.tracker.AnsweredCount(),
		FlaggedCount:   s.tracker.FlaggedCount(),
		Questions:      make([]QuestionState, 0, len(s.snap.Questions)),
	}
	for i := range s.snap.Questions {
		q := &s.snap.Questions[i]
		snap.Questions = append(snap.Questions, QuestionState{
			QuestionID: q.ID,
			Position:   q.Position,
			Answered:   s.tracker.IsAnswered(q.ID),
			Flagged:    s.tracker.IsFlagged(q.ID),
		})
	}
	if !s.limited {
		snap.Unlimited = true
		snap.RemainingDisplay = UnlimitedDisplay
		snap.Tier = TierNone
		return snap
	}
	remaining := s.remainingLocked()
	snap.RemainingSeconds = int64(remaining / time.Second)
	snap.RemainingDisplay = FormatRemaining(snap.RemainingSeconds)
	snap.Tier = ClassifyRemaining(remaining, true)
	return snap
}

func (s *Session) displayLocked() string {
	if !s.limited {
		return UnlimitedDisplay
	}
	return FormatRemaining(int64(s.remainingLocked() / time.Second))
}

// Subscribe registers an event channel. Slow subscribers drop events rather
// than stall the session.
func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// broadcastLocked fans an event out to subscribers. Callers hold mu, which
// also serializes sends against Subscribe/Unsubscribe.
func (s *Session) broadcastLocked(ev Event) {
	ev.AttemptID = s.attempt.ID
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Done is closed exactly once, when the attempt reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the detailed result once the attempt completed.
func (s *Session) Result() (*scoring.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptCompleted || s.result == nil {
		return nil, ErrInvalidState
	}
	return s.result, nil
}

// Attempt returns a copy of the attempt row as the engine last saw it.
func (s *Session) Attempt() model.ExamAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.attempt
}

// AttemptID identifies the attempt this session owns.
func (s *Session) AttemptID() uuid.UUID { return s.attempt.ID }

// Candidate returns the exam taker this session belongs to.
func (s *Session) Candidate() Candidate { return s.candidate }

// InProgress reports whether the attempt is still running.
func (s *Session) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Status == model.AttemptInProgress
}

// Terminal reports whether the attempt reached a final state.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Status.Terminal()
}

// TerminalAt returns when the attempt went terminal (zero if it has not).
func (s *Session) TerminalAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalAt
}

// LastActivity returns the time of the last candidate operation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// NeedsFinalizeRetry reports whether an auto-submit failed to persist and the
// attempt is still waiting to complete.
func (s *Session) NeedsFinalizeRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeErr != nil && s.attempt.Status == model.AttemptInProgress
}

// RetryFinalize re-runs the terminal transition after a failed auto-submit.
// A session that completed in the meantime is left alone.
func (s *Session) RetryFinalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptInProgress {
		return nil
	}
	if err := s.finalizeLocked(ctx); err != nil {
		s.finalizeErr = err
		return err
	}
	s.log.Info().Msg("attempt finalized on retry")
	return nil
}

// answerListLocked flattens the answer map in question position order so
// scoring input is deterministic. Callers hold mu.
func (s *Session) answerListLocked() []model.UserAnswer {
	out := make([]model.UserAnswer, 0, len(s.answers))
	for i := range s.snap.Questions {
		if ua, ok := s.answers[s.snap.Questions[i].ID]; ok {
			out = append(out, *ua)
		}
	}
	return out
}

func equalIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
