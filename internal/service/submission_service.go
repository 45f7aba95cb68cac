package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/response"
)

// SubmissionReader is implemented by repository.SubmissionRepository.
type SubmissionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID, limit, offset int) ([]model.SubmissionSummary, int, error)
}

// SubmissionService serves the staff review pages.
type SubmissionService struct {
	repo SubmissionReader
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(repo SubmissionReader) *SubmissionService {
	return &SubmissionService{repo: repo}
}

// List retrieves one page of submissions of a quiz, newest first.
func (s *SubmissionService) List(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]model.SubmissionSummary, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	offset := (page - 1) * perPage
	items, total, err := s.repo.ListByQuiz(ctx, quizID, perPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []model.SubmissionSummary{}
	}

	return items, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Get returns one submission with its answers and cheat attempts.
func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("submission %s not found", id)
	}
	return sub, err
}
