// Package session implements the timed quiz session: a pure state machine
// (Machine.Apply) and a runner (Session) that executes its side effects.
package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/stemsi/whitelist-backend/internal/model"
)

// Phase is the coarse state of a session.
type Phase string

const (
	PhaseRules     Phase = "rules"
	PhaseTaking    Phase = "taking"
	PhaseSubmitted Phase = "submitted"
)

// State is the whole in-memory session. Only Machine.Apply produces new values.
//
// In PhaseRules, Index and Answers hold a restored draft so the rules page
// can offer to resume. In PhaseTaking, len(Answers) == Index always, and
// Index == number of questions only while the final submission is pending
// or after it failed.
type State struct {
	Phase    Phase
	Index    int
	TimeLeft int
	Staged   string

	Answers []model.Answer
	Cheats  []model.CheatAttempt

	Token   string
	TokenAt time.Time

	Submitting   bool
	SubmissionID string
}

// NewState builds the initial rules-phase state, resuming d when it fits quiz.
// A draft that does not fit is ignored.
func NewState(quiz *model.Quiz, d *model.Draft) State {
	s := State{Phase: PhaseRules}
	if d == nil {
		return s
	}
	if d.CurrentQuestionIndex < 0 ||
		d.CurrentQuestionIndex > len(quiz.Questions) ||
		len(d.Answers) != d.CurrentQuestionIndex {
		return s
	}
	s.Index = d.CurrentQuestionIndex
	s.Answers = slices.Clone(d.Answers)
	return s
}

// Resumed reports whether the state carries answers from a draft.
func (s State) Resumed() bool {
	return s.Phase == PhaseRules && s.Index > 0
}

// Check verifies the structural invariants against a quiz of total questions.
func (s State) Check(total int) error {
	if s.Index < 0 || s.Index > total {
		return fmt.Errorf("index %d out of range [0,%d]", s.Index, total)
	}
	if s.Phase == PhaseTaking && len(s.Answers) != s.Index {
		return fmt.Errorf("taking with %d answers at index %d", len(s.Answers), s.Index)
	}
	if s.Phase == PhaseSubmitted && s.SubmissionID == "" {
		return fmt.Errorf("submitted without submission id")
	}
	if s.TimeLeft < 0 {
		return fmt.Errorf("negative time left %d", s.TimeLeft)
	}
	return nil
}

func (s State) clone() State {
	s.Answers = slices.Clone(s.Answers)
	s.Cheats = slices.Clone(s.Cheats)
	return s
}
