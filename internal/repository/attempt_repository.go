package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/session"
)

// AttemptHistory is one row of a candidate's attempt history, joined with the
// exam it was taken against.
type AttemptHistory struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	ExamSlug         string              `json:"exam_slug"`
	ExamTitle        string              `json:"exam_title"`
	Certification    string              `json:"certification"`
	Mode             model.AttemptMode   `json:"mode"`
	Status           model.AttemptStatus `json:"status"`
	TotalQuestions   int                 `json:"total_questions"`
	CorrectCount     *int                `json:"correct_count,omitempty"`
	ScorePercent     *float64            `json:"score_percent,omitempty"`
	Passed           *bool               `json:"passed,omitempty"`
	TimeSpentSeconds *int64              `json:"time_spent_seconds,omitempty"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

// AttemptRepository persists exam attempts and their answers. It implements
// session.Store: transport failures come back as *session.StorageError so the
// engine can retry them, guard violations map onto the engine's error set.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, exam_id, mode, status, total_questions, time_limit_minutes,
	started_at, completed_at, correct_count, score_percent, passed, time_spent_seconds, created_at, updated_at`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.Mode, &a.Status, &a.TotalQuestions, &a.TimeLimitMinutes,
		&a.StartedAt, &a.CompletedAt, &a.CorrectCount, &a.ScorePercent, &a.Passed, &a.TimeSpentSeconds,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAttempt opens a fresh IN_PROGRESS attempt, copying the question count
// and, for exam mode, the time limit from the exam row. Practice attempts
// carry no limit. The partial unique index on (user_id, exam_id) rejects a
// second in-progress attempt for the pair; that surfaces as ErrConflict.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, examID, userID uuid.UUID, mode model.AttemptMode) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (user_id, exam_id, mode, status, total_questions, time_limit_minutes)
		 SELECT $1, e.id, $3, 'IN_PROGRESS', e.question_count,
		        CASE WHEN $3 = 'exam' THEN e.time_limit_minutes END
		 FROM exams e WHERE e.id = $2 AND e.active
		 RETURNING `+attemptColumns,
		userID, examID, mode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err // unknown or inactive exam
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, session.ErrConflict
		}
		return nil, &session.StorageError{Op: "create attempt", Err: err}
	}
	return a, nil
}

// FindInProgress retrieves the pair's in-progress attempt, or nil when there
// is none.
func (r *AttemptRepository) FindInProgress(ctx context.Context, userID, examID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status = 'IN_PROGRESS'`,
		userID, examID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &session.StorageError{Op: "find in-progress attempt", Err: err}
	}
	return a, nil
}

// AbandonAttempt marks an in-progress attempt abandoned. Its persisted
// answers are left in place.
func (r *AttemptRepository) AbandonAttempt(ctx context.Context, attemptID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'ABANDONED', completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'IN_PROGRESS'`, attemptID)
	if err != nil {
		return &session.StorageError{Op: "abandon attempt", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return session.ErrInvalidState
	}
	return nil
}

// RecordAnswer upserts one selection. The (attempt_id, question_id) conflict
// target makes a re-answer supersede the earlier row instead of accumulating;
// the EXISTS guard keeps answers out of attempts that already went terminal.
func (r *AttemptRepository) RecordAnswer(ctx context.Context, answer *model.UserAnswer) (*model.UserAnswer, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO user_answers (attempt_id, question_id, answer_ids, is_correct, time_spent_seconds, answered_at)
		 SELECT $1, $2, $3, $4, $5, $6
		 WHERE EXISTS (SELECT 1 FROM exam_attempts WHERE id = $1 AND status = 'IN_PROGRESS')
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET answer_ids = EXCLUDED.answer_ids,
		     is_correct = EXCLUDED.is_correct,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     answered_at = EXCLUDED.answered_at`,
		answer.AttemptID, answer.QuestionID, answer.AnswerIDs, answer.IsCorrect,
		answer.TimeSpentSeconds, answer.AnsweredAt)
	if err != nil {
		return nil, &session.StorageError{Op: "record answer", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return nil, session.ErrInvalidState
	}
	saved := *answer
	return &saved, nil
}

// CompleteAttempt writes the terminal summary onto an in-progress attempt.
func (r *AttemptRepository) CompleteAttempt(ctx context.Context, attemptID uuid.UUID, summary model.AttemptSummary) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED', completed_at = $2, correct_count = $3,
		     score_percent = $4, passed = $5, time_spent_seconds = $6, updated_at = now()
		 WHERE id = $1 AND status = 'IN_PROGRESS'`,
		attemptID, summary.CompletedAt, summary.CorrectCount, summary.ScorePercent,
		summary.Passed, summary.TimeSpentSeconds)
	if err != nil {
		return &session.StorageError{Op: "complete attempt", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return session.ErrInvalidState
	}
	return nil
}

// LoadAttempt retrieves an attempt with the exam's question set and the
// attempt's answers, enough to rescore it without a live session. A missing
// attempt comes back as pgx.ErrNoRows.
func (r *AttemptRepository) LoadAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, []model.Question, []model.UserAnswer, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, attemptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, err
		}
		return nil, nil, nil, &session.StorageError{Op: "load attempt", Err: err}
	}

	questions, err := loadExamQuestions(ctx, r.pool, a.ExamID)
	if err != nil {
		return nil, nil, nil, &session.StorageError{Op: "load attempt questions", Err: err}
	}
	answers, err := r.listAnswers(ctx, attemptID)
	if err != nil {
		return nil, nil, nil, &session.StorageError{Op: "load attempt answers", Err: err}
	}
	return a, questions, answers, nil
}

func (r *AttemptRepository) listAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.UserAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ua.attempt_id, ua.question_id, ua.answer_ids, ua.is_correct, ua.time_spent_seconds, ua.answered_at
		 FROM user_answers ua
		 JOIN questions q ON ua.question_id = q.id
		 WHERE ua.attempt_id = $1
		 ORDER BY q.position`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.UserAnswer
	for rows.Next() {
		var ua model.UserAnswer
		if err := rows.Scan(&ua.AttemptID, &ua.QuestionID, &ua.AnswerIDs, &ua.IsCorrect, &ua.TimeSpentSeconds, &ua.AnsweredAt); err != nil {
			return nil, err
		}
		answers = append(answers, ua)
	}
	return answers, rows.Err()
}

// ListByUser retrieves a candidate's attempt history, newest first, optionally
// filtered to one exam, with pagination.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, examID *uuid.UUID, page, perPage int) ([]AttemptHistory, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM exam_attempts a
		JOIN exams e ON a.exam_id = e.id
		WHERE a.user_id = $1
	`
	args := []any{userID}
	if examID != nil {
		args = append(args, *examID)
		baseQuery += fmt.Sprintf(" AND a.exam_id = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT a.id, a.exam_id, e.slug, e.title, e.certification, a.mode, a.status,
		       a.total_questions, a.correct_count, a.score_percent, a.passed,
		       a.time_spent_seconds, a.started_at, a.completed_at
	` + baseQuery + `
		ORDER BY a.started_at DESC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var history []AttemptHistory
	for rows.Next() {
		var h AttemptHistory
		if err := rows.Scan(
			&h.AttemptID, &h.ExamID, &h.ExamSlug, &h.ExamTitle, &h.Certification, &h.Mode, &h.Status,
			&h.TotalQuestions, &h.CorrectCount, &h.ScorePercent, &h.Passed,
			&h.TimeSpentSeconds, &h.StartedAt, &h.CompletedAt,
		); err != nil {
			return nil, 0, err
		}
		history = append(history, h)
	}
	return history, total, rows.Err()
}
