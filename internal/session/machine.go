package session

import (
	"slices"
	"time"

	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// ErrWrongPhase rejects an action the current phase does not accept.
var ErrWrongPhase = apperr.Validation("action not allowed in current phase")

// Event is an input to Machine.Apply.
type Event interface{ isEvent() }

type (
	// CaptchaSolved stores a fresh verification token.
	CaptchaSolved struct {
		Token string
		At    time.Time
	}
	// CaptchaExpired discards the stored token.
	CaptchaExpired struct{}
	// Begin leaves the rules page. At is compared with the token age.
	Begin struct{ At time.Time }
	// Stage replaces the staged answer of the current question.
	Stage struct{ Text string }
	// SubmitAnswer commits the staged answer and advances.
	SubmitAnswer struct{}
	// Tick reports the remaining seconds of the current question.
	Tick struct{ Remaining int }
	// Expire commits whatever is staged because the countdown hit zero.
	Expire struct{}
	// CheatRecorded appends an attempt produced by the cheat monitor.
	CheatRecorded struct{ Attempt model.CheatAttempt }
	// RetrySubmit re-sends a failed final submission.
	RetrySubmit struct{}
	// SubmitSucceeded and SubmitFailed report the pipeline outcome.
	SubmitSucceeded struct{ SubmissionID string }
	SubmitFailed    struct{ Err error }
	// Reset abandons the attempt and its draft.
	Reset struct{}
)

func (CaptchaSolved) isEvent()   {}
func (CaptchaExpired) isEvent()  {}
func (Begin) isEvent()           {}
func (Stage) isEvent()           {}
func (SubmitAnswer) isEvent()    {}
func (Tick) isEvent()            {}
func (Expire) isEvent()          {}
func (CheatRecorded) isEvent()   {}
func (RetrySubmit) isEvent()     {}
func (SubmitSucceeded) isEvent() {}
func (SubmitFailed) isEvent()    {}
func (Reset) isEvent()           {}

// Effect is a side effect requested by Machine.Apply, executed by Session.
type Effect interface{ isEffect() }

type (
	StartTimer    struct{ Limit int }
	StopTimer     struct{}
	AttachMonitor struct{}
	DetachMonitor struct{}
	SaveDraft     struct{ Draft model.Draft }
	ClearDraft    struct{}
	// Submit hands the finished attempt to the submission pipeline.
	Submit struct {
		Answers []model.Answer
		Cheats  []model.CheatAttempt
		Token   string
	}
)

func (StartTimer) isEffect()    {}
func (StopTimer) isEffect()     {}
func (AttachMonitor) isEffect() {}
func (DetachMonitor) isEffect() {}
func (SaveDraft) isEffect()     {}
func (ClearDraft) isEffect()    {}
func (Submit) isEffect()        {}

// Machine is the transition function of one quiz. It holds no mutable state.
type Machine struct {
	Quiz *model.Quiz
	// CaptchaTTL bounds the token age accepted by Begin. Zero disables the check.
	CaptchaTTL time.Duration
}

// Apply returns the state after ev and the effects to run, in order. On error
// s is returned unchanged and no effect must run.
func (m Machine) Apply(s State, ev Event) (State, []Effect, error) {
	if err := m.validate(s, ev); err != nil {
		return s, nil, err
	}

	next := s.clone()
	switch e := ev.(type) {
	case CaptchaSolved:
		next.Token = e.Token
		next.TokenAt = e.At
		return next, nil, nil

	case CaptchaExpired:
		next.Token = ""
		next.TokenAt = time.Time{}
		return next, nil, nil

	case Begin:
		return m.begin(next)

	case Stage:
		next.Staged = e.Text
		return next, nil, nil

	case Tick:
		if !m.answering(s) {
			return s, nil, nil
		}
		next.TimeLeft = clamp(e.Remaining, 0, m.limit(s.Index))
		return next, nil, nil

	case SubmitAnswer:
		return m.advance(next)

	case Expire:
		if !m.answering(s) {
			return s, nil, nil
		}
		next.TimeLeft = 0
		return m.advance(next)

	case CheatRecorded:
		// A submission in flight already holds the cheat log.
		if s.Phase != PhaseTaking || s.Submitting {
			return s, nil, nil
		}
		next.Cheats = append(next.Cheats, e.Attempt)
		return next, nil, nil

	case RetrySubmit:
		return dispatch(next, nil)

	case SubmitSucceeded:
		next.Submitting = false
		next.Phase = PhaseSubmitted
		next.SubmissionID = e.SubmissionID
		next.Staged = ""
		return next, []Effect{StopTimer{}, DetachMonitor{}}, nil

	case SubmitFailed:
		next.Submitting = false
		next.Token = ""
		next.TokenAt = time.Time{}
		return next, nil, nil

	case Reset:
		return State{Phase: PhaseRules}, []Effect{StopTimer{}, DetachMonitor{}, ClearDraft{}}, nil
	}

	return s, nil, ErrWrongPhase
}

// validate rejects events that cannot apply to s. Events that are merely
// stale (a late tick, an expiry after the answer was sent) are not errors.
func (m Machine) validate(s State, ev Event) error {
	switch e := ev.(type) {
	case CaptchaSolved:
		if s.Phase == PhaseSubmitted {
			return ErrWrongPhase
		}
		if e.Token == "" {
			return apperr.ErrCaptchaRequired
		}
	case Begin:
		if s.Phase != PhaseRules {
			return ErrWrongPhase
		}
		if s.Token == "" {
			return apperr.ErrCaptchaRequired
		}
		if m.CaptchaTTL > 0 && e.At.Sub(s.TokenAt) > m.CaptchaTTL {
			return apperr.ErrCaptchaExpired
		}
	case Stage, SubmitAnswer:
		if s.Submitting {
			return apperr.ErrSubmitInFlight
		}
		if !m.answering(s) {
			return ErrWrongPhase
		}
	case RetrySubmit:
		if s.Submitting {
			return apperr.ErrSubmitInFlight
		}
		if s.Phase != PhaseTaking || s.Index != len(m.Quiz.Questions) {
			return ErrWrongPhase
		}
		if s.Token == "" {
			return apperr.ErrCaptchaRequired
		}
	case SubmitSucceeded, SubmitFailed:
		if !s.Submitting {
			return ErrWrongPhase
		}
	case Reset:
		if s.Phase == PhaseSubmitted {
			return ErrWrongPhase
		}
		if s.Submitting {
			return apperr.ErrSubmitInFlight
		}
	}
	return nil
}

func (m Machine) begin(s State) (State, []Effect, error) {
	s.Phase = PhaseTaking
	s.Staged = ""
	effects := []Effect{AttachMonitor{}}

	if s.Index >= len(m.Quiz.Questions) {
		// A draft that already holds every answer goes straight to submission.
		s.TimeLeft = 0
		return dispatch(s, effects)
	}

	s.TimeLeft = m.limit(s.Index)
	return s, append(effects, StartTimer{Limit: s.TimeLeft}), nil
}

// advance commits the staged answer of the current question.
func (m Machine) advance(s State) (State, []Effect, error) {
	q := m.Quiz.Questions[s.Index]
	s.Answers = append(s.Answers, model.Answer{
		QuestionID:   q.ID,
		QuestionText: q.Prompt,
		Response:     s.Staged,
		TimeTaken:    clamp(q.TimeLimit-s.TimeLeft, 0, q.TimeLimit),
	})
	s.Staged = ""
	s.Index++

	save := SaveDraft{Draft: model.Draft{
		Answers:              slices.Clone(s.Answers),
		CurrentQuestionIndex: s.Index,
	}}

	if s.Index < len(m.Quiz.Questions) {
		s.TimeLeft = m.limit(s.Index)
		return s, []Effect{StartTimer{Limit: s.TimeLeft}, save}, nil
	}

	s.TimeLeft = 0
	return dispatch(s, []Effect{StopTimer{}, save})
}

// dispatch hands the attempt to the pipeline. The token is single use, so
// it moves into the effect.
func dispatch(s State, effects []Effect) (State, []Effect, error) {
	submit := Submit{
		Answers: slices.Clone(s.Answers),
		Cheats:  slices.Clone(s.Cheats),
		Token:   s.Token,
	}
	s.Submitting = true
	s.Token = ""
	s.TokenAt = time.Time{}
	return s, append(effects, submit), nil
}

// answering reports whether a question is on screen and accepting input.
func (m Machine) answering(s State) bool {
	return s.Phase == PhaseTaking && !s.Submitting && s.Index < len(m.Quiz.Questions)
}

func (m Machine) limit(index int) int {
	if index < 0 || index >= len(m.Quiz.Questions) {
		return 0
	}
	return m.Quiz.Questions[index].TimeLimit
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
