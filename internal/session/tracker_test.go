package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTrackerSelectBounds(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		wantErr bool
	}{
		{"first", 0, false},
		{"middle", 2, false},
		{"last", 4, false},
		{"negative", -1, true},
		{"past end", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(5)
			err := tr.Select(tt.index)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("Select(%d) err = %v, want ErrOutOfRange", tt.index, err)
				}
				if tr.Current() != 0 {
					t.Errorf("failed select must not move the index, got %d", tr.Current())
				}
				return
			}
			if err != nil {
				t.Fatalf("Select(%d) unexpected error: %v", tt.index, err)
			}
			if tr.Current() != tt.index {
				t.Errorf("current = %d, want %d", tr.Current(), tt.index)
			}
		})
	}
}

func TestTrackerNextPreviousClamp(t *testing.T) {
	tr := NewTracker(3)

	tr.Previous()
	if tr.Current() != 0 {
		t.Errorf("Previous at start moved to %d, want clamp at 0", tr.Current())
	}

	tr.Next()
	tr.Next()
	if tr.Current() != 2 {
		t.Fatalf("current = %d, want 2", tr.Current())
	}
	tr.Next()
	if tr.Current() != 2 {
		t.Errorf("Next at end moved to %d, want clamp at 2", tr.Current())
	}

	tr.Previous()
	if tr.Current() != 1 {
		t.Errorf("current = %d, want 1", tr.Current())
	}
}

func TestTrackerToggleFlagIdempotent(t *testing.T) {
	tr := NewTracker(3)
	id := uuid.New()

	if on := tr.ToggleFlag(id); !on {
		t.Fatal("first toggle must flag")
	}
	if !tr.IsFlagged(id) {
		t.Fatal("flag not set")
	}
	if on := tr.ToggleFlag(id); on {
		t.Fatal("second toggle must unflag")
	}
	if tr.IsFlagged(id) {
		t.Fatal("double toggle must return to the original state")
	}
	if tr.FlaggedCount() != 0 {
		t.Errorf("flagged count = %d, want 0", tr.FlaggedCount())
	}
}

func TestTrackerMarkAnswered(t *testing.T) {
	tr := NewTracker(3)
	a, b := uuid.New(), uuid.New()

	tr.MarkAnswered(a)
	tr.MarkAnswered(a) // answering again must not double count
	tr.MarkAnswered(b)

	if tr.AnsweredCount() != 2 {
		t.Errorf("answered count = %d, want 2", tr.AnsweredCount())
	}
	if !tr.IsAnswered(a) || !tr.IsAnswered(b) {
		t.Error("answered membership lost")
	}
	if tr.IsAnswered(uuid.New()) {
		t.Error("unknown question reported answered")
	}
}
