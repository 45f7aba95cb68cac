package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// ErrDuplicateQuestionOrder is returned when two questions share an order number.
var ErrDuplicateQuestionOrder = errors.New("duplicate question order")

// QuizRepository handles quiz and question data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz with its questions in order. A missing quiz
// returns pgx.ErrNoRows.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, instructions, is_open, created_at, updated_at
		 FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.Instructions, &q.Open, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, time_limit, order_num
		 FROM questions WHERE quiz_id = $1
		 ORDER BY order_num ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var question model.Question
		if err := rows.Scan(&question.ID, &question.Prompt, &question.TimeLimit, &question.OrderNum); err != nil {
			return nil, err
		}
		q.Questions = append(q.Questions, question)
	}
	return q, rows.Err()
}

// ListOpen returns the ids of all open quizzes.
// Used for cache prewarming on application startup.
func (r *QuizRepository) ListOpen(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM quizzes WHERE is_open = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetOpen opens or closes a quiz. A missing quiz returns pgx.ErrNoRows.
func (r *QuizRepository) SetOpen(ctx context.Context, id uuid.UUID, open bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET is_open = $1, updated_at = NOW() WHERE id = $2`,
		open, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Create inserts a quiz and its questions in one transaction, filling in the
// generated ids and timestamps.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO quizzes (title, instructions, is_open)
			 VALUES ($1, $2, $3)
			 RETURNING id, created_at, updated_at`,
			q.Title, q.Instructions, q.Open,
		).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}

		for i := range q.Questions {
			question := &q.Questions[i]
			err := tx.QueryRow(ctx,
				`INSERT INTO questions (quiz_id, prompt, time_limit, order_num)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				q.ID, question.Prompt, question.TimeLimit, question.OrderNum,
			).Scan(&question.ID)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return ErrDuplicateQuestionOrder
				}
				return fmt.Errorf("insert question %d: %w", question.OrderNum, err)
			}
		}
		return nil
	})
}
