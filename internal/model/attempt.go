package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. COMPLETED and ABANDONED
// are terminal; an attempt is never mutated once it reaches either.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "NOT_STARTED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptAbandoned  AttemptStatus = "ABANDONED"
)

// Terminal reports whether the status is final.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

// AttemptMode selects between a timed run and untimed practice.
type AttemptMode string

const (
	ModeExam     AttemptMode = "exam"
	ModePractice AttemptMode = "practice"
)

// ExamAttempt is one candidate's pass at one exam. Exactly one attempt may be
// IN_PROGRESS per (user, exam) pair; starting a new attempt abandons any
// existing in-progress one first. Score fields stay nil until completion.
type ExamAttempt struct {
	ID               uuid.UUID     `json:"id"`
	UserID           uuid.UUID     `json:"user_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	Mode             AttemptMode   `json:"mode"`
	Status           AttemptStatus `json:"status"`
	TotalQuestions   int           `json:"total_questions"`
	TimeLimitMinutes *int          `json:"time_limit_minutes,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CorrectCount     *int          `json:"correct_count,omitempty"`
	ScorePercent     *float64      `json:"score_percent,omitempty"`
	Passed           *bool         `json:"passed,omitempty"`
	TimeSpentSeconds *int64        `json:"time_spent_seconds,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// UserAnswer is one committed selection for one question of one attempt.
// A later selection for the same question supersedes it (last write wins per
// question); rows are upserted on (attempt_id, question_id), never edited by
// hand.
type UserAnswer struct {
	AttemptID        uuid.UUID   `json:"attempt_id"`
	QuestionID       uuid.UUID   `json:"question_id"`
	AnswerIDs        []uuid.UUID `json:"answer_ids"`
	IsCorrect        bool        `json:"is_correct"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
	AnsweredAt       time.Time   `json:"answered_at"`
}

// AttemptSummary carries the scoring outcome persisted onto the attempt row
// when it completes. The full detailed result is recomputed on demand from
// the stored answers.
type AttemptSummary struct {
	CorrectCount     int       `json:"correct_count"`
	ScorePercent     float64   `json:"score_percent"`
	Passed           bool      `json:"passed"`
	TimeSpentSeconds int64     `json:"time_spent_seconds"`
	CompletedAt      time.Time `json:"completed_at"`
}

// StartAttemptRequest is the payload for starting or restarting an attempt.
type StartAttemptRequest struct {
	Mode string `json:"mode" binding:"required,oneof=exam practice"`
}

// RecordAnswerRequest is the payload for committing a selection.
type RecordAnswerRequest struct {
	AnswerIDs        []string `json:"answer_ids" binding:"required,min=1,dive,uuid4"`
	TimeSpentSeconds int      `json:"time_spent_seconds" binding:"omitempty,min=0"`
}

// SelectQuestionRequest is the payload for jumping to a question by index.
type SelectQuestionRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}
