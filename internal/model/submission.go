package model

import (
	"time"

	"github.com/google/uuid"
)

// Submission is the durable record of a completed quiz attempt.
type Submission struct {
	ID            uuid.UUID      `json:"id"`
	UserID        string         `json:"user_id"`
	Username      string         `json:"username"`
	HighestRole   string         `json:"highest_role"`
	QuizID        uuid.UUID      `json:"quiz_id"`
	QuizTitle     string         `json:"quiz_title"`
	Answers       []Answer       `json:"answers"`
	CheatAttempts []CheatAttempt `json:"cheat_attempts"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// Flagged reports whether any cheat attempt was recorded.
func (s *Submission) Flagged() bool {
	return len(s.CheatAttempts) > 0
}

// SubmissionSummary is a row of the staff review list.
type SubmissionSummary struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	HighestRole string    `json:"highest_role"`
	CheatCount  int       `json:"cheat_count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ListSubmissionsQuery is the staff list query string.
type ListSubmissionsQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}
