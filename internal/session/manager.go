package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/model"
)

// Options tunes a Manager. The zero value selects the system clock and a
// one-second tick.
type Options struct {
	Source       Source
	TickInterval time.Duration
	NewTicker    func() Ticker
}

// Manager is the registry of live sessions. It owns the one-live-session-
// per-(user, exam) rule; the persisted one-in-progress-attempt rule is
// enforced through the store on every start.
type Manager struct {
	mu        sync.RWMutex
	byAttempt map[uuid.UUID]*Session
	byPair    map[pairKey]*Session
	starting  map[pairKey]struct{}

	store     Store
	notifier  Notifier
	src       Source
	interval  time.Duration
	newTicker func() Ticker
	log       zerolog.Logger
}

type pairKey struct {
	user uuid.UUID
	exam uuid.UUID
}

// NewManager wires the engine's collaborators together.
func NewManager(store Store, notifier Notifier, log zerolog.Logger, opts Options) *Manager {
	if opts.Source == nil {
		opts.Source = SystemSource{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func() Ticker { return NewClock() }
	}
	return &Manager{
		byAttempt: make(map[uuid.UUID]*Session),
		byPair:    make(map[pairKey]*Session),
		starting:  make(map[pairKey]struct{}),
		store:     store,
		notifier:  notifier,
		src:       opts.Source,
		interval:  opts.TickInterval,
		newTicker: opts.NewTicker,
		log:       log.With().Str("component", "session_manager").Logger(),
	}
}

// Start opens a fresh attempt for the candidate on the given exam.
//
// A live in-progress session for the same (user, exam) pair means the client
// double-started: that fails with ErrConflict. A persisted in-progress
// attempt WITHOUT a live session is stale (crashed client, previous process)
// and is abandoned before the fresh attempt is created, so the store never
// holds two in-progress attempts for one pair.
func (m *Manager) Start(ctx context.Context, cand Candidate, snap *model.ExamSnapshot, mode model.AttemptMode) (*Session, error) {
	key := pairKey{user: cand.ID, exam: snap.Exam.ID}

	m.mu.Lock()
	if cur, ok := m.byPair[key]; ok {
		if cur.InProgress() {
			m.mu.Unlock()
			return nil, ErrConflict
		}
		m.removeLocked(cur)
	}
	if _, ok := m.starting[key]; ok {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	m.starting[key] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.starting, key)
		m.mu.Unlock()
	}()

	stale, err := m.store.FindInProgress(ctx, cand.ID, snap.Exam.ID)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		if err := m.store.AbandonAttempt(ctx, stale.ID); err != nil {
			return nil, err
		}
		m.log.Info().
			Str("attempt_id", stale.ID.String()).
			Str("user_id", cand.ID.String()).
			Msg("abandoned stale in-progress attempt")
	}

	attempt, err := m.store.CreateAttempt(ctx, snap.Exam.ID, cand.ID, mode)
	if err != nil {
		return nil, err
	}

	s := newSession(cand, snap, attempt, m.newTicker(), m.src, m.store, m.notifier, m.log)
	if s.limited {
		go s.run(s.clock.Start(m.interval))
	}

	m.mu.Lock()
	m.byAttempt[attempt.ID] = s
	m.byPair[key] = s
	m.mu.Unlock()

	m.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("user_id", cand.ID.String()).
		Str("mode", string(mode)).
		Msg("attempt started")
	return s, nil
}

// Restart force-discards any in-progress attempt for the pair, live or not,
// regardless of elapsed time, then starts fresh.
func (m *Manager) Restart(ctx context.Context, cand Candidate, snap *model.ExamSnapshot, mode model.AttemptMode) (*Session, error) {
	key := pairKey{user: cand.ID, exam: snap.Exam.ID}

	m.mu.RLock()
	cur := m.byPair[key]
	m.mu.RUnlock()

	if cur != nil {
		// A session that went terminal between lookup and here is fine;
		// anything else aborting the abandon aborts the restart.
		if err := cur.Abandon(ctx); err != nil && !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		m.Remove(cur)
	}
	return m.Start(ctx, cand, snap, mode)
}

// Get looks a live session up by attempt id.
func (m *Manager) Get(attemptID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byAttempt[attemptID]
	return s, ok
}

// Sessions returns a point-in-time copy of all registered sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byAttempt))
	for _, s := range m.byAttempt {
		out = append(out, s)
	}
	return out
}

// ActiveCount reports how many registered sessions are still in progress.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.byAttempt {
		if s.InProgress() {
			n++
		}
	}
	return n
}

// Remove drops a session from the registry. The session's own terminal
// bookkeeping (clock stop, done channel) is not touched here.
func (m *Manager) Remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(s)
}

func (m *Manager) removeLocked(s *Session) {
	delete(m.byAttempt, s.AttemptID())
	key := pairKey{user: s.candidate.ID, exam: s.snap.Exam.ID}
	if m.byPair[key] == s {
		delete(m.byPair, key)
	}
}

// Close stops every session's clock. Attempts are left untouched in the
// store; in-progress ones are picked up as stale on the next start.
func (m *Manager) Close() {
	for _, s := range m.Sessions() {
		s.clock.Stop()
	}
}
