package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create inserts a submission. Every failure is a persistence error; a
// second submission for the same (user, quiz) also matches
// apperr.ErrAlreadySubmitted.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) (uuid.UUID, error) {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return uuid.Nil, apperr.Persistence(fmt.Errorf("encode answers: %w", err))
	}
	cheats, err := json.Marshal(s.CheatAttempts)
	if err != nil {
		return uuid.Nil, apperr.Persistence(fmt.Errorf("encode cheat attempts: %w", err))
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions (user_id, username, highest_role, quiz_id, quiz_title, answers, cheat_attempts, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, quiz_id) DO NOTHING
		 RETURNING id`,
		s.UserID, s.Username, s.HighestRole, s.QuizID, s.QuizTitle, answers, cheats, s.SubmittedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, &apperr.Error{
			Kind: apperr.KindPersistence,
			Msg:  apperr.ErrAlreadySubmitted.Msg,
			Err:  apperr.ErrAlreadySubmitted,
		}
	}
	if err != nil {
		return uuid.Nil, apperr.Persistence(err)
	}
	return id, nil
}

// GetByID retrieves a full submission. A missing row returns pgx.ErrNoRows.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	var answers, cheats []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, username, highest_role, quiz_id, quiz_title, answers, cheat_attempts, submitted_at
		 FROM submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.Username, &s.HighestRole, &s.QuizID, &s.QuizTitle, &answers, &cheats, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(cheats, &s.CheatAttempts); err != nil {
		return nil, fmt.Errorf("decode cheat attempts: %w", err)
	}
	return s, nil
}

// ListByQuiz returns a page of submission summaries, newest first, and the total count.
func (r *SubmissionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, limit, offset int) ([]model.SubmissionSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE quiz_id = $1`, quizID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, username, highest_role, jsonb_array_length(cheat_attempts), submitted_at
		 FROM submissions WHERE quiz_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, quizID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := []model.SubmissionSummary{}
	for rows.Next() {
		var s model.SubmissionSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Username, &s.HighestRole, &s.CheatCount, &s.SubmittedAt); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// ExistsForUser reports whether the user already submitted the quiz.
func (r *SubmissionRepository) ExistsForUser(ctx context.Context, userID string, quizID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE user_id = $1 AND quiz_id = $2)`,
		userID, quizID,
	).Scan(&exists)
	return exists, err
}
