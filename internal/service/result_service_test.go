package service

import (
	"testing"

	"github.com/google/uuid"

	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/scoring"
)

func reviewQuestion(position int) model.Question {
	q := model.Question{
		ID:         uuid.New(),
		Position:   position,
		Text:       "text",
		Difficulty: model.DifficultyEasy,
	}
	q.Answers = []model.Answer{
		{ID: uuid.New(), QuestionID: q.ID, Letter: "A", IsCorrect: true},
		{ID: uuid.New(), QuestionID: q.ID, Letter: "B"},
	}
	return q
}

func TestAssembleReview(t *testing.T) {
	correct := reviewQuestion(0)
	wrong := reviewQuestion(1)
	skipped := reviewQuestion(2)
	questions := []model.Question{correct, wrong, skipped}

	outcomes := []scoring.QuestionOutcome{
		{QuestionID: correct.ID, Answered: true, Correct: true, SelectedIDs: []uuid.UUID{correct.Answers[0].ID}},
		{QuestionID: wrong.ID, Answered: true, Correct: false, SelectedIDs: []uuid.UUID{wrong.Answers[1].ID}},
		{QuestionID: skipped.ID},
	}

	reviews := assembleReview(questions, outcomes)
	if len(reviews) != 3 {
		t.Fatalf("reviews = %d, want 3", len(reviews))
	}

	first := reviews[0]
	if !first.Answered || !first.Correct {
		t.Errorf("correct question review = %+v", first)
	}
	if !first.Answers[0].Selected || !first.Answers[0].Correct {
		t.Error("selected correct option must be marked both selected and correct")
	}
	if first.Answers[1].Selected {
		t.Error("unselected option marked selected")
	}

	second := reviews[1]
	if !second.Answered || second.Correct {
		t.Errorf("wrong question review = %+v", second)
	}
	if !second.Answers[1].Selected {
		t.Error("the wrong pick must still show as selected")
	}
	if !second.Answers[0].Correct {
		t.Error("the key must stay visible on a wrong answer")
	}

	third := reviews[2]
	if third.Answered || third.Correct {
		t.Errorf("skipped question review = %+v", third)
	}
	for _, a := range third.Answers {
		if a.Selected {
			t.Error("skipped question has selections")
		}
	}
	if !third.Answers[0].Correct {
		t.Error("the key must stay visible on a skipped question")
	}
}
