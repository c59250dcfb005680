package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/model"
)

// CompletionEvent is the payload published for every confirmed completion.
// The operator events feed relays it verbatim.
type CompletionEvent struct {
	AttemptID      uuid.UUID         `json:"attempt_id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Mode           model.AttemptMode `json:"mode"`
	TotalQuestions int               `json:"total_questions"`
	CorrectCount   int               `json:"correct_count"`
	ScorePercent   float64           `json:"score_percent"`
	Passed         bool              `json:"passed"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// CompletionNotifier publishes confirmed completions to Redis pub/sub.
// Publishing is best-effort: the attempt is already terminal in the store
// by the time this runs, so a failed publish is logged and dropped.
type CompletionNotifier struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewCompletionNotifier creates a new CompletionNotifier.
func NewCompletionNotifier(rdb *redis.Client, log zerolog.Logger) *CompletionNotifier {
	return &CompletionNotifier{
		rdb: rdb,
		log: log.With().Str("component", "completion_notifier").Logger(),
	}
}

// AttemptCompleted publishes the completion to the completions channel.
func (n *CompletionNotifier) AttemptCompleted(ctx context.Context, attempt *model.ExamAttempt, summary model.AttemptSummary) {
	ev := CompletionEvent{
		AttemptID:      attempt.ID,
		ExamID:         attempt.ExamID,
		UserID:         attempt.UserID,
		Mode:           attempt.Mode,
		TotalQuestions: attempt.TotalQuestions,
		CorrectCount:   summary.CorrectCount,
		ScorePercent:   summary.ScorePercent,
		Passed:         summary.Passed,
		CompletedAt:    summary.CompletedAt,
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("Completion event marshal failed")
		return
	}

	if err := n.rdb.Publish(ctx, config.CacheKey.CompletionsChannel(), payload).Err(); err != nil {
		n.log.Warn().
			Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Completion publish failed")
		return
	}

	n.log.Debug().
		Str("attempt_id", attempt.ID.String()).
		Float64("score_percent", summary.ScorePercent).
		Msg("Completion published")
}
