package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Tracker keeps the candidate's place in the question list plus which
// questions carry a durably recorded answer and which are flagged for
// review. It has no locking of its own; the owning session serializes all
// access.
type Tracker struct {
	total    int
	current  int
	answered map[uuid.UUID]struct{}
	flagged  map[uuid.UUID]struct{}
}

// NewTracker starts at question zero with nothing answered or flagged.
func NewTracker(total int) *Tracker {
	return &Tracker{
		total:    total,
		answered: make(map[uuid.UUID]struct{}),
		flagged:  make(map[uuid.UUID]struct{}),
	}
}

// Select jumps to a question by zero-based index.
func (t *Tracker) Select(index int) error {
	if index < 0 || index >= t.total {
		return fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfRange, index, t.total)
	}
	t.current = index
	return nil
}

// Next advances one question, staying put on the last one.
func (t *Tracker) Next() {
	if t.current < t.total-1 {
		t.current++
	}
}

// Previous steps back one question, staying put on the first one.
func (t *Tracker) Previous() {
	if t.current > 0 {
		t.current--
	}
}

// ToggleFlag flips the review flag for a question and returns the new state.
func (t *Tracker) ToggleFlag(id uuid.UUID) bool {
	if _, ok := t.flagged[id]; ok {
		delete(t.flagged, id)
		return false
	}
	t.flagged[id] = struct{}{}
	return true
}

// MarkAnswered records that an answer for the question is durably stored.
// Callers must only invoke this after the persistence collaborator has
// acknowledged the write, so the answered badge never shows optimistic
// state.
func (t *Tracker) MarkAnswered(id uuid.UUID) {
	t.answered[id] = struct{}{}
}

// Current returns the zero-based index of the question in view.
func (t *Tracker) Current() int { return t.current }

// AnsweredCount returns how many questions hold a recorded answer.
func (t *Tracker) AnsweredCount() int { return len(t.answered) }

// FlaggedCount returns how many questions are flagged for review.
func (t *Tracker) FlaggedCount() int { return len(t.flagged) }

// IsAnswered reports whether the question holds a recorded answer.
func (t *Tracker) IsAnswered(id uuid.UUID) bool {
	_, ok := t.answered[id]
	return ok
}

// IsFlagged reports whether the question is flagged for review.
func (t *Tracker) IsFlagged(id uuid.UUID) bool {
	_, ok := t.flagged[id]
	return ok
}
