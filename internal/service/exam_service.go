package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/repository"
)

// Domain Errors
var (
	ErrExamNotFound = errors.New("exam not found")
	ErrNoQuestions  = errors.New("exam has no questions")
)

// ExamService serves the catalog and the exam snapshots sessions run against.
// A snapshot is cached in Redis as one JSON blob per exam so the attempt hot
// path never fans out across the catalog tables.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// List retrieves every exam currently open to candidates.
func (s *ExamService) List(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.examRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// GetBySlug retrieves one exam by its URL slug.
func (s *ExamService) GetBySlug(ctx context.Context, slug string) (*model.Exam, error) {
	exam, err := s.examRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Snapshot returns the full exam bundle, preferring the Redis copy. On a miss
// or an undecodable entry it falls back to PostgreSQL and rewrites the cache.
func (s *ExamService) Snapshot(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	key := config.CacheKey.ExamSnapshotKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var snap model.ExamSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Discarding undecodable snapshot cache entry")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Snapshot cache read failed, serving from database")
	}
	return s.warmSnapshot(ctx, examID)
}

// warmSnapshot loads an exam's snapshot from PostgreSQL and caches it. The
// cache write is best-effort; the database copy is authoritative.
func (s *ExamService) warmSnapshot(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	snap, err := s.examRepo.Snapshot(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if len(snap.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	key := config.CacheKey.ExamSnapshotKey(examID.String())
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Snapshot cache write failed")
	} else {
		s.log.Debug().
			Str("exam_id", examID.String()).
			Int("questions", len(snap.Questions)).
			Msg("Snapshot cached")
	}
	return snap, nil
}

// InvalidateSnapshot drops an exam's cached snapshot, e.g. after its content
// changed. The next Snapshot call rebuilds it.
func (s *ExamService) InvalidateSnapshot(ctx context.Context, examID uuid.UUID) error {
	key := config.CacheKey.ExamSnapshotKey(examID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	return nil
}

// PrewarmAll loads every active exam's snapshot into Redis on application
// startup so first candidates never race a cold cache.
func (s *ExamService) PrewarmAll(ctx context.Context) error {
	exams, err := s.examRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := s.warmSnapshot(ctx, exams[i].ID); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam snapshot, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Snapshot prewarming complete")
	return nil
}

// Paper returns the candidate-facing rendering of an exam: question and
// answer text with the answer key stripped.
func (s *ExamService) Paper(ctx context.Context, slug string) (*model.ExamPaper, error) {
	exam, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !exam.Active {
		return nil, ErrExamNotFound
	}
	snap, err := s.Snapshot(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	return snap.Paper(), nil
}
