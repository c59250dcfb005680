package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certwise/certprep-backend/internal/model"
)

// ExamRepository handles exam catalog data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, slug, title, description, certification, passing_score,
	time_limit_minutes, question_count, active, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Certification, &e.PassingScore,
		&e.TimeLimitMinutes, &e.QuestionCount, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// GetBySlug retrieves an exam by its URL slug.
func (r *ExamRepository) GetBySlug(ctx context.Context, slug string) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE slug = $1`, slug))
}

// ListActive retrieves every exam currently open to candidates.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+`
		 FROM exams WHERE active
		 ORDER BY certification, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Certification, &e.PassingScore,
			&e.TimeLimitMinutes, &e.QuestionCount, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Snapshot assembles the full exam bundle a session runs against: metadata,
// knowledge areas and the question set with answer keys.
func (r *ExamRepository) Snapshot(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	exam, err := r.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	areas, err := r.listAreas(ctx, examID)
	if err != nil {
		return nil, err
	}
	questions, err := loadExamQuestions(ctx, r.pool, examID)
	if err != nil {
		return nil, err
	}
	return &model.ExamSnapshot{Exam: *exam, Areas: areas, Questions: questions}, nil
}

func (r *ExamRepository) listAreas(ctx context.Context, examID uuid.UUID) ([]model.KnowledgeArea, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, name, weight_percent, position
		 FROM knowledge_areas WHERE exam_id = $1
		 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []model.KnowledgeArea
	for rows.Next() {
		var a model.KnowledgeArea
		if err := rows.Scan(&a.ID, &a.ExamID, &a.Name, &a.WeightPercent, &a.Position); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// loadExamQuestions retrieves an exam's questions in position order with
// their answers nested, shared by the snapshot and attempt loaders.
func loadExamQuestions(ctx context.Context, pool *pgxpool.Pool, examID uuid.UUID) ([]model.Question, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, exam_id, area_id, position, text, explanation, difficulty, min_selections
		 FROM questions WHERE exam_id = $1
		 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.AreaID, &q.Position, &q.Text, &q.Explanation,
			&q.Difficulty, &q.MinSelections); err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := pool.Query(ctx,
		`SELECT a.id, a.question_id, a.letter, a.text, a.explanation, a.is_correct
		 FROM answers a
		 JOIN questions q ON a.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY a.question_id, a.letter`, examID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var a model.Answer
		if err := arows.Scan(&a.ID, &a.QuestionID, &a.Letter, &a.Text, &a.Explanation, &a.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[a.QuestionID]; ok {
			questions[i].Answers = append(questions[i].Answers, a)
		}
	}
	return questions, arows.Err()
}
