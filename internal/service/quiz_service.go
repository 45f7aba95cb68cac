package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// ErrNoQuestions rejects sessions on a quiz without questions.
var ErrNoQuestions = apperr.NotFound("quiz has no questions")

// QuizStore is implemented by repository.QuizRepository.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListOpen(ctx context.Context) ([]uuid.UUID, error)
	SetOpen(ctx context.Context, id uuid.UUID, open bool) error
}

// QuizService reads quizzes through a Redis payload cache.
type QuizService struct {
	repo QuizStore
	rdb  redis.Cmdable
	ttl  time.Duration
	log  zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(repo QuizStore, rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *QuizService {
	return &QuizService{
		repo: repo,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetQuiz returns the quiz with its questions, open or not.
func (s *QuizService) GetQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	key := config.CacheKey.QuizPayloadKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var quiz model.Quiz
		if jsonErr := json.Unmarshal(data, &quiz); jsonErr == nil {
			return &quiz, nil
		}
		s.log.Warn().Str("quiz_id", id.String()).Msg("Discarding corrupt quiz cache entry")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Quiz cache read failed, falling back to database")
	}

	quiz, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	s.cache(ctx, quiz)
	return quiz, nil
}

// GetOpenQuiz returns a quiz that can be taken right now.
func (s *QuizService) GetOpenQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if !quiz.Open {
		return nil, apperr.ErrQuizClosed
	}
	if len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return quiz, nil
}

// SetOpen opens or closes a quiz and drops its cached payload.
func (s *QuizService) SetOpen(ctx context.Context, id uuid.UUID, open bool) error {
	if err := s.repo.SetOpen(ctx, id, open); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrQuizNotFound
		}
		return fmt.Errorf("set quiz open: %w", err)
	}

	if err := s.rdb.Del(ctx, config.CacheKey.QuizPayloadKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Quiz cache invalidation failed")
	}

	s.log.Info().Str("quiz_id", id.String()).Bool("open", open).Msg("Quiz status changed")
	return nil
}

// PrewarmAllCaches loads all open quizzes into Redis on application startup.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.repo.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open quizzes: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No open quizzes to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		quiz, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Failed to warm quiz, skipping")
			continue
		}
		s.cache(ctx, quiz)
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *QuizService) cache(ctx context.Context, quiz *model.Quiz) {
	data, err := json.Marshal(quiz)
	if err != nil {
		s.log.Error().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Quiz marshal failed")
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.QuizPayloadKey(quiz.ID.String()), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Quiz cache write failed")
	}
}
