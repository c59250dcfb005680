package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/repository"
	"github.com/certwise/certprep-backend/internal/response"
	"github.com/certwise/certprep-backend/internal/scoring"
)

// Domain Errors
var (
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrNotAttemptOwner     = errors.New("attempt belongs to another candidate")
	ErrAttemptNotCompleted = errors.New("attempt is not completed")
)

// AnswerReview is one answer option with full disclosure for post-completion
// review: the key and the candidate's selection side by side.
type AnswerReview struct {
	ID          uuid.UUID `json:"id"`
	Letter      string    `json:"letter"`
	Text        string    `json:"text"`
	Explanation string    `json:"explanation,omitempty"`
	Correct     bool      `json:"correct"`
	Selected    bool      `json:"selected"`
}

// QuestionReview pairs a question's content with the candidate's outcome.
type QuestionReview struct {
	QuestionID  uuid.UUID        `json:"question_id"`
	Position    int              `json:"position"`
	Text        string           `json:"text"`
	Explanation string           `json:"explanation,omitempty"`
	Difficulty  model.Difficulty `json:"difficulty"`
	Answered    bool             `json:"answered"`
	Correct     bool             `json:"correct"`
	Answers     []AnswerReview   `json:"answers"`
}

// DetailedResult is the full post-completion report for one attempt.
type DetailedResult struct {
	Attempt *model.ExamAttempt `json:"attempt"`
	Exam    *model.Exam        `json:"exam"`
	Result  *scoring.Result    `json:"result"`
	Review  []QuestionReview   `json:"review"`
}

// ResultService rebuilds detailed reports for completed attempts from their
// persisted answers. Scoring is deterministic, so a rescore always reproduces
// the summary that was written at completion time.
type ResultService struct {
	attemptRepo *repository.AttemptRepository
	examSvc     *ExamService
	log         zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(attemptRepo *repository.AttemptRepository, examSvc *ExamService, log zerolog.Logger) *ResultService {
	return &ResultService{
		attemptRepo: attemptRepo,
		examSvc:     examSvc,
		log:         log.With().Str("component", "result_service").Logger(),
	}
}

// Detailed loads a completed attempt and rebuilds its full scored report,
// including the per-question review. Only the attempt's owner may read it,
// and only after completion; abandoned attempts have no result.
func (s *ResultService) Detailed(ctx context.Context, userID, attemptID uuid.UUID) (*DetailedResult, error) {
	attempt, questions, answers, err := s.attemptRepo.LoadAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrNotAttemptOwner
	}
	if attempt.Status != model.AttemptCompleted {
		return nil, ErrAttemptNotCompleted
	}

	snap, err := s.examSvc.Snapshot(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	var elapsedMinutes float64
	if attempt.TimeSpentSeconds != nil {
		elapsedMinutes = float64(*attempt.TimeSpentSeconds) / 60
	}
	limit := 0
	if attempt.Mode == model.ModeExam && attempt.TimeLimitMinutes != nil {
		limit = *attempt.TimeLimitMinutes
	}

	result := scoring.Score(scoring.Input{
		Questions:        questions,
		Areas:            snap.Areas,
		Answers:          answers,
		ElapsedMinutes:   elapsedMinutes,
		TimeLimitMinutes: limit,
		PassingScore:     snap.Exam.PassingScore,
	})

	return &DetailedResult{
		Attempt: attempt,
		Exam:    &snap.Exam,
		Result:  result,
		Review:  assembleReview(questions, result.Outcomes),
	}, nil
}

// History pages through a candidate's attempts, newest first, optionally
// filtered to one exam.
func (s *ResultService) History(ctx context.Context, userID uuid.UUID, examID *uuid.UUID, page, perPage int) ([]repository.AttemptHistory, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	history, total, err := s.attemptRepo.ListByUser(ctx, userID, examID, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	if history == nil {
		history = []repository.AttemptHistory{}
	}

	return history, response.NewPagination(page, perPage, total), nil
}

// assembleReview merges question content with per-question outcomes so the
// review shows what was selected against what was correct.
func assembleReview(questions []model.Question, outcomes []scoring.QuestionOutcome) []QuestionReview {
	byID := make(map[uuid.UUID]*scoring.QuestionOutcome, len(outcomes))
	for i := range outcomes {
		byID[outcomes[i].QuestionID] = &outcomes[i]
	}

	reviews := make([]QuestionReview, 0, len(questions))
	for _, q := range questions {
		r := QuestionReview{
			QuestionID:  q.ID,
			Position:    q.Position,
			Text:        q.Text,
			Explanation: q.Explanation,
			Difficulty:  q.Difficulty,
		}
		var selected map[uuid.UUID]bool
		if out, ok := byID[q.ID]; ok {
			r.Answered = out.Answered
			r.Correct = out.Correct
			selected = make(map[uuid.UUID]bool, len(out.SelectedIDs))
			for _, id := range out.SelectedIDs {
				selected[id] = true
			}
		}
		for _, a := range q.Answers {
			r.Answers = append(r.Answers, AnswerReview{
				ID:          a.ID,
				Letter:      a.Letter,
				Text:        a.Text,
				Explanation: a.Explanation,
				Correct:     a.IsCorrect,
				Selected:    selected[a.ID],
			})
		}
		reviews = append(reviews, r)
	}
	return reviews
}
