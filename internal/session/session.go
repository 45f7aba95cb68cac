package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/cheat"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/submission"
	"github.com/stemsi/whitelist-backend/internal/timer"
)

// ErrClosed is returned by Send once the session loop has exited.
var ErrClosed = errors.New("session closed")

// VisibilityChanged carries a raw page-visibility signal. The session passes
// it through its cheat monitor; only hidden signals while taking are recorded.
type VisibilityChanged struct{ State cheat.Visibility }

func (VisibilityChanged) isEvent() {}

// Submitter runs the submission pipeline.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (uuid.UUID, error)
}

// QuestionView is the question currently on screen.
type QuestionView struct {
	ID        uuid.UUID `json:"id"`
	Number    int       `json:"number"`
	Prompt    string    `json:"prompt"`
	TimeLimit int       `json:"time_limit"`
}

// Snapshot is the client-facing view of a State.
type Snapshot struct {
	Phase          Phase         `json:"phase"`
	QuizID         uuid.UUID     `json:"quiz_id"`
	TotalQuestions int           `json:"total_questions"`
	Index          int           `json:"current_question_index"`
	Question       *QuestionView `json:"question,omitempty"`
	TimeLeft       int           `json:"time_left"`
	Staged         string        `json:"staged_answer"`
	AnsweredCount  int           `json:"answered_count"`
	CaptchaReady   bool          `json:"captcha_ready"`
	Resumable      bool          `json:"resumable"`
	Submitting     bool          `json:"submitting"`
	SubmissionID   string        `json:"submission_id,omitempty"`
}

// Update is published after every handled event. Err is set when the event
// was rejected or the submission failed.
type Update struct {
	Snapshot Snapshot
	Err      error
}

// Options wires a Session. Drafts, Submitter and Timer are required.
type Options struct {
	Identity   model.Identity
	Quiz       *model.Quiz
	Drafts     draft.Store
	Submitter  Submitter
	Timer      *timer.Engine
	Monitor    *cheat.Monitor
	CaptchaTTL time.Duration
	RemoteIP   string
	// OnUpdate is called from the session goroutine. It must not call Send.
	OnUpdate func(Update)
	Log      zerolog.Logger
}

// Session owns one user's attempt at one quiz. All state changes happen on
// the goroutine running Run.
type Session struct {
	opts    Options
	machine Machine
	key     string

	mu    sync.RWMutex
	state State

	inbox chan Event
	done  chan struct{}
	log   zerolog.Logger
}

// New creates a session in the rules phase, restoring the stored draft when
// one fits the quiz.
func New(ctx context.Context, opts Options) *Session {
	if opts.Monitor == nil {
		opts.Monitor = cheat.NewMonitor(opts.Quiz.ID.String(), opts.Identity.UserID, nil, opts.Log)
	}
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(Update) {}
	}

	key := draft.Key(opts.Identity.UserID, opts.Quiz.ID.String())
	restored, _ := opts.Drafts.Load(ctx, key)

	return &Session{
		opts:    opts,
		machine: Machine{Quiz: opts.Quiz, CaptchaTTL: opts.CaptchaTTL},
		key:     key,
		state:   NewState(opts.Quiz, restored),
		inbox:   make(chan Event, 16),
		done:    make(chan struct{}),
		log: opts.Log.With().
			Str("component", "session").
			Str("user_id", opts.Identity.UserID).
			Str("quiz_id", opts.Quiz.ID.String()).
			Logger(),
	}
}

// Run processes events until ctx is cancelled. It publishes an initial
// snapshot before the first event.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.opts.Timer.Stop()
	defer s.opts.Monitor.Detach()

	s.publish(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.inbox:
			s.handle(ctx, ev)
		case tev := <-s.opts.Timer.Events():
			if tev.Run != s.opts.Timer.Active() {
				continue
			}
			if tev.Kind == timer.KindExpired {
				s.handle(ctx, Expire{})
			} else {
				s.handle(ctx, Tick{Remaining: tev.Remaining})
			}
		}
	}
}

// request carries an event that expects the machine's verdict back.
type request struct {
	ev    Event
	reply chan error
}

func (request) isEvent() {}

// Do queues ev and waits until the session loop has applied it. It returns
// the machine's rejection, if any, so callers can act on the outcome.
func (s *Session) Do(ctx context.Context, ev Event) error {
	req := request{ev: ev, reply: make(chan error, 1)}
	if err := s.Send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues ev for the session loop.
func (s *Session) Send(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.inbox <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Snapshot returns the client view of the current state.
func (s *Session) Snapshot() Snapshot {
	return s.snapshot(s.State())
}

func (s *Session) handle(ctx context.Context, ev Event) {
	if req, ok := ev.(request); ok {
		req.reply <- s.apply(ctx, req.ev)
		return
	}
	s.apply(ctx, ev)
}

func (s *Session) apply(ctx context.Context, ev Event) error {
	if v, ok := ev.(VisibilityChanged); ok {
		// The in-flight submission already carries the cheat log.
		if s.State().Submitting {
			return nil
		}
		attempt, recorded := s.opts.Monitor.Observe(ctx, v.State)
		if !recorded {
			return nil
		}
		ev = CheatRecorded{Attempt: attempt}
	}

	current := s.State()
	next, effects, err := s.machine.Apply(current, ev)
	if err != nil {
		s.log.Debug().Err(err).Str("phase", string(current.Phase)).Msg("Event rejected")
		s.publish(err)
		return err
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	for _, eff := range effects {
		s.execute(ctx, eff)
	}

	var surfaced error
	switch e := ev.(type) {
	case SubmitFailed:
		surfaced = e.Err
		s.log.Warn().Err(e.Err).Msg("Submission failed, attempt kept for retry")
	case SubmitSucceeded:
		s.log.Info().Str("submission_id", e.SubmissionID).Int("cheat_attempts", len(next.Cheats)).Msg("Quiz submitted")
	}
	s.publish(surfaced)
	return nil
}

func (s *Session) execute(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case StartTimer:
		s.opts.Timer.Start(e.Limit)
	case StopTimer:
		s.opts.Timer.Stop()
	case AttachMonitor:
		s.opts.Monitor.Attach()
	case DetachMonitor:
		s.opts.Monitor.Detach()
	case SaveDraft:
		// The save at index == len(questions) keeps a finished attempt for
		// retry if the process dies before the pipeline stores it.
		s.opts.Drafts.Save(ctx, s.key, e.Draft)
	case ClearDraft:
		if err := s.opts.Drafts.Clear(ctx, s.key); err != nil {
			s.log.Warn().Err(err).Msg("Draft clear failed")
		}
	case Submit:
		go s.submit(ctx, e)
	}
}

// submit runs the pipeline off the session goroutine. The pipeline runs to
// completion even if the client disconnects; only the result delivery is
// abandoned.
func (s *Session) submit(ctx context.Context, e Submit) {
	id, err := s.opts.Submitter.Submit(context.WithoutCancel(ctx), submission.Request{
		Identity:     s.opts.Identity,
		Quiz:         s.opts.Quiz,
		Answers:      e.Answers,
		Cheats:       e.Cheats,
		CaptchaToken: e.Token,
		RemoteIP:     s.opts.RemoteIP,
	})

	var result Event = SubmitSucceeded{SubmissionID: id.String()}
	if err != nil {
		result = SubmitFailed{Err: err}
	}

	select {
	case s.inbox <- result:
	case <-ctx.Done():
	}
}

func (s *Session) publish(err error) {
	s.opts.OnUpdate(Update{Snapshot: s.Snapshot(), Err: err})
}

func (s *Session) snapshot(st State) Snapshot {
	snap := Snapshot{
		Phase:          st.Phase,
		QuizID:         s.opts.Quiz.ID,
		TotalQuestions: len(s.opts.Quiz.Questions),
		Index:          st.Index,
		TimeLeft:       st.TimeLeft,
		Staged:         st.Staged,
		AnsweredCount:  len(st.Answers),
		CaptchaReady:   st.Token != "",
		Resumable:      st.Resumed(),
		Submitting:     st.Submitting,
		SubmissionID:   st.SubmissionID,
	}
	if st.Phase == PhaseTaking && st.Index < len(s.opts.Quiz.Questions) {
		q := s.opts.Quiz.Questions[st.Index]
		snap.Question = &QuestionView{
			ID:        q.ID,
			Number:    st.Index + 1,
			Prompt:    q.Prompt,
			TimeLimit: q.TimeLimit,
		}
	}
	return snap
}
