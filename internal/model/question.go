package model

import "github.com/google/uuid"

// Question is a single free-text quiz question with its own countdown.
type Question struct {
	ID        uuid.UUID `json:"id"`
	Prompt    string    `json:"prompt"`
	TimeLimit int       `json:"time_limit"` // seconds, always > 0
	OrderNum  int       `json:"order_num"`
}
