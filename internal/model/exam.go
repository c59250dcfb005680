package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents one certification practice exam in the catalog.
type Exam struct {
	ID               uuid.UUID `json:"id"`
	Slug             string    `json:"slug"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Certification    string    `json:"certification"`
	PassingScore     float64   `json:"passing_score"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	QuestionCount    int       `json:"question_count"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// KnowledgeArea is a weighted topic grouping within one exam, used for result
// reporting. Weights across an exam's areas sum to 100 and are reported
// as-is, never renormalized.
type KnowledgeArea struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	Name          string    `json:"name"`
	WeightPercent float64   `json:"weight_percent"`
	Position      int       `json:"position"`
}

// ExamSnapshot is the immutable bundle a session runs against: exam metadata,
// knowledge areas and the full question set including answer keys. Cached in
// Redis as a single JSON blob per exam; never sent to candidates.
type ExamSnapshot struct {
	Exam      Exam            `json:"exam"`
	Areas     []KnowledgeArea `json:"areas"`
	Questions []Question      `json:"questions"`
}

// ExamPaper is the candidate-facing rendering of an exam: question and answer
// text only, no correctness flags, no explanations.
type ExamPaper struct {
	ExamID           uuid.UUID              `json:"exam_id"`
	Title            string                 `json:"title"`
	Certification    string                 `json:"certification"`
	PassingScore     float64                `json:"passing_score"`
	TimeLimitMinutes int                    `json:"time_limit_minutes"`
	Questions        []QuestionForCandidate `json:"questions"`
}

// QuestionForCandidate is a question stripped of its answer key.
type QuestionForCandidate struct {
	ID            uuid.UUID      `json:"id"`
	Position      int            `json:"position"`
	AreaID        uuid.UUID      `json:"area_id"`
	Text          string         `json:"text"`
	Difficulty    Difficulty     `json:"difficulty"`
	MinSelections int            `json:"min_selections"`
	Answers       []AnswerOption `json:"answers"`
}

// AnswerOption is an answer choice stripped of its correctness flag.
type AnswerOption struct {
	ID     uuid.UUID `json:"id"`
	Letter string    `json:"letter"`
	Text   string    `json:"text"`
}

// Paper converts a snapshot into its candidate-facing form.
func (s *ExamSnapshot) Paper() *ExamPaper {
	paper := &ExamPaper{
		ExamID:           s.Exam.ID,
		Title:            s.Exam.Title,
		Certification:    s.Exam.Certification,
		PassingScore:     s.Exam.PassingScore,
		TimeLimitMinutes: s.Exam.TimeLimitMinutes,
		Questions:        make([]QuestionForCandidate, 0, len(s.Questions)),
	}
	for _, q := range s.Questions {
		qc := QuestionForCandidate{
			ID:            q.ID,
			Position:      q.Position,
			AreaID:        q.AreaID,
			Text:          q.Text,
			Difficulty:    q.Difficulty,
			MinSelections: q.MinSelections,
			Answers:       make([]AnswerOption, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			qc.Answers = append(qc.Answers, AnswerOption{ID: a.ID, Letter: a.Letter, Text: a.Text})
		}
		paper.Questions = append(paper.Questions, qc)
	}
	return paper
}
