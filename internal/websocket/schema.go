package websocket

import (
	"github.com/certwise/certprep-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionFlag     Action = "flag"
	ActionSelect   Action = "select"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest commits one selection for a question.
type AnswerRequest struct {
	Action           Action   `json:"action"`
	QuestionID       string   `json:"question_id"`
	AnswerIDs        []string `json:"answer_ids"`
	TimeSpentSeconds int      `json:"time_spent_seconds"`
}

// FlagRequest toggles the review flag on a question.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
}

// SelectRequest jumps to a question by zero-based index.
type SelectRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// SubmitRequest finishes and scores the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Messages (Server → Client) ─────────────────────────────────────
//
// Engine events (tick, answer_saved, completed, abandoned, error) are
// forwarded verbatim from the session's event stream and carry the same
// "type" discriminator. The types below cover transport-local replies.

type Message string

const (
	MessageState   Message = "state"
	MessageFlagged Message = "flagged"
	MessagePong    Message = "pong"
	MessageError   Message = "error"
)

// StateMessage carries a full session snapshot, sent on connect and after
// navigation actions.
type StateMessage struct {
	Type  Message          `json:"type"`
	State session.Snapshot `json:"state"`
}

// FlaggedMessage acknowledges a flag toggle with the new flag state.
type FlaggedMessage struct {
	Type       Message `json:"type"`
	QuestionID string  `json:"question_id"`
	Flagged    bool    `json:"flagged"`
}

type PongMessage struct {
	Type Message `json:"type"`
}

type ErrorMessage struct {
	Type    Message `json:"type"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message"`
}
