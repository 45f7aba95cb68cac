package model

import "time"

// Draft is the persisted snapshot of an in-progress session for a (user, quiz) pair.
// Remaining time is deliberately absent: a resumed question always gets its full limit.
type Draft struct {
	Answers              []Answer  `json:"answers"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DraftStatus tells the rules page whether a resumable draft exists.
type DraftStatus struct {
	Exists               bool       `json:"exists"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	AnsweredCount        int        `json:"answered_count"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}
