package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one answered question. QuestionText is captured at answer time.
type Answer struct {
	QuestionID   uuid.UUID `json:"question_id"`
	QuestionText string    `json:"question_text"`
	Response     string    `json:"response"`
	TimeTaken    int       `json:"time_taken"` // seconds, 0..time limit
}

// CheatMethodVisibilityLoss tags a cheat attempt caused by the page becoming hidden.
const CheatMethodVisibilityLoss = "visibility-loss"

// CheatAttempt is append-only tamper evidence. Timestamp marshals as ISO-8601.
type CheatAttempt struct {
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}
