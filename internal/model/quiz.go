package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is an application quiz. Immutable once fetched for a session.
type Quiz struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Instructions string     `json:"instructions"`
	Open         bool       `json:"open"`
	Questions    []Question `json:"questions"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TotalSeconds is the sum of every question's time limit.
func (q *Quiz) TotalSeconds() int {
	total := 0
	for _, question := range q.Questions {
		total += question.TimeLimit
	}
	return total
}

// QuizOverview is shown on the rules page before a session starts.
type QuizOverview struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Instructions     string    `json:"instructions"`
	Open             bool      `json:"open"`
	QuestionCount    int       `json:"question_count"`
	TotalSeconds     int       `json:"total_seconds"`
	AlreadySubmitted bool      `json:"already_submitted"`
}

// UpdateQuizStatusRequest opens or closes a quiz for applications.
type UpdateQuizStatusRequest struct {
	Open *bool `json:"open" binding:"required"`
}
