package model

import "github.com/google/uuid"

// Difficulty grades a question for the per-difficulty result breakdown.
// Ordinal: easy < medium < hard.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists all levels in ordinal order. Result breakdowns report
// every level even when the exam has no questions at one of them.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Question represents a single exam question. Immutable during an attempt.
// MinSelections is the number of answers the candidate is expected to pick;
// values above one mark the question as multi-select.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	ExamID        uuid.UUID  `json:"exam_id"`
	AreaID        uuid.UUID  `json:"area_id"`
	Position      int        `json:"position"`
	Text          string     `json:"text"`
	Explanation   string     `json:"explanation,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	MinSelections int        `json:"min_selections"`
	Answers       []Answer   `json:"answers"`
}

// Answer is one selectable choice of a question. Immutable.
type Answer struct {
	ID          uuid.UUID `json:"id"`
	QuestionID  uuid.UUID `json:"question_id"`
	Letter      string    `json:"letter"`
	Text        string    `json:"text"`
	Explanation string    `json:"explanation,omitempty"`
	IsCorrect   bool      `json:"is_correct"`
}

// CorrectAnswerIDs returns the question's designated correct answer set.
func (q *Question) CorrectAnswerIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// HasAnswer reports whether id is one of the question's answer choices.
func (q *Question) HasAnswer(id uuid.UUID) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}
