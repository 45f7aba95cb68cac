package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/cheat"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/session"
	"github.com/stemsi/whitelist-backend/internal/timer"
)

// QuizProvider is implemented by QuizService.
type QuizProvider interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	GetOpenQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
}

// SubmissionLookup is implemented by repository.SubmissionRepository.
type SubmissionLookup interface {
	ExistsForUser(ctx context.Context, userID string, quizID uuid.UUID) (bool, error)
}

// MonitorFeed is implemented by cheat.RedisFeed.
type MonitorFeed interface {
	cheat.Feed
	Publish(ctx context.Context, quizID string, ev cheat.FeedEvent) error
}

// LiveSession is a running session registered for a (user, quiz) pair.
type LiveSession struct {
	Identity model.Identity
	QuizID   uuid.UUID
	Session  *session.Session
	OpenedAt time.Time

	key    string
	cancel context.CancelFunc
}

// LiveSummary is one row of the staff live monitor.
type LiveSummary struct {
	UserID        string        `json:"user_id"`
	Username      string        `json:"username"`
	Phase         session.Phase `json:"phase"`
	AnsweredCount int           `json:"answered_count"`
	CheatCount    int           `json:"cheat_count"`
	OpenedAt      time.Time     `json:"opened_at"`
}

// SessionService opens quiz sessions and keeps at most one live session per
// (user, quiz). Opening a second one stops the first.
type SessionService struct {
	quizzes     QuizProvider
	submissions SubmissionLookup
	drafts      draft.Store
	submitter   session.Submitter
	feed        MonitorFeed
	captchaTTL  time.Duration
	newTicker   timer.TickerFunc
	log         zerolog.Logger

	mu   sync.Mutex
	live map[string]*LiveSession
}

// NewSessionService creates a new SessionService. feed may be nil.
func NewSessionService(
	quizzes QuizProvider,
	submissions SubmissionLookup,
	drafts draft.Store,
	submitter session.Submitter,
	feed MonitorFeed,
	captchaTTL time.Duration,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		quizzes:     quizzes,
		submissions: submissions,
		drafts:      drafts,
		submitter:   submitter,
		feed:        feed,
		captchaTTL:  captchaTTL,
		newTicker:   timer.RealTicker,
		live:        make(map[string]*LiveSession),
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// SetTicker replaces the countdown ticker of sessions opened afterwards.
func (s *SessionService) SetTicker(newTicker timer.TickerFunc) {
	s.newTicker = newTicker
}

// Overview returns the rules page data of a quiz.
func (s *SessionService) Overview(ctx context.Context, identity model.Identity, quizID uuid.UUID) (*model.QuizOverview, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	submitted, err := s.submissions.ExistsForUser(ctx, identity.UserID, quizID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}

	return &model.QuizOverview{
		ID:               quiz.ID,
		Title:            quiz.Title,
		Instructions:     quiz.Instructions,
		Open:             quiz.Open,
		QuestionCount:    len(quiz.Questions),
		TotalSeconds:     quiz.TotalSeconds(),
		AlreadySubmitted: submitted,
	}, nil
}

// Open starts a session for identity on an open quiz. onUpdate receives
// every snapshot from the session goroutine. Call Close when the client goes away.
func (s *SessionService) Open(ctx context.Context, identity model.Identity, quizID uuid.UUID, remoteIP string, onUpdate func(session.Update)) (*LiveSession, error) {
	quiz, err := s.quizzes.GetOpenQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	submitted, err := s.submissions.ExistsForUser(ctx, identity.UserID, quizID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if submitted {
		return nil, apperr.ErrAlreadySubmitted
	}

	var monitorFeed cheat.Feed
	if s.feed != nil {
		monitorFeed = s.feed
	}

	runCtx, cancel := context.WithCancel(context.Background())
	live := &LiveSession{
		Identity: identity,
		QuizID:   quizID,
		OpenedAt: time.Now().UTC(),
		key:      draft.Key(identity.UserID, quizID.String()),
		cancel:   cancel,
	}

	tracker := &progressTracker{svc: s, live: live, answered: -1}
	live.Session = session.New(ctx, session.Options{
		Identity:   identity,
		Quiz:       quiz,
		Drafts:     s.drafts,
		Submitter:  s.submitter,
		Timer:      timer.NewEngine(s.newTicker),
		Monitor:    cheat.NewMonitor(quizID.String(), identity.UserID, monitorFeed, s.log),
		CaptchaTTL: s.captchaTTL,
		RemoteIP:   remoteIP,
		OnUpdate: func(u session.Update) {
			if onUpdate != nil {
				onUpdate(u)
			}
			tracker.observe(u)
		},
		Log: s.log,
	})

	s.mu.Lock()
	previous := s.live[live.key]
	s.live[live.key] = live
	s.mu.Unlock()

	if previous != nil {
		s.log.Info().
			Str("user_id", identity.UserID).
			Str("quiz_id", quizID.String()).
			Msg("Replacing session opened in another tab")
		previous.cancel()
	}

	go live.Session.Run(runCtx)
	s.publish(quizID, cheat.FeedEvent{Type: cheat.FeedJoin, UserID: identity.UserID, Username: identity.Username})
	return live, nil
}

// Close stops a live session and unregisters it if it is still the current one.
func (s *SessionService) Close(live *LiveSession) {
	live.cancel()

	s.mu.Lock()
	current := s.live[live.key] == live
	if current {
		delete(s.live, live.key)
	}
	s.mu.Unlock()

	if current && live.Session.State().Phase != session.PhaseSubmitted {
		s.publish(live.QuizID, cheat.FeedEvent{Type: cheat.FeedLeft, UserID: live.Identity.UserID, Username: live.Identity.Username})
	}
}

// DraftStatus reports whether a resumable draft exists.
func (s *SessionService) DraftStatus(ctx context.Context, userID string, quizID uuid.UUID) (*model.DraftStatus, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	d, ok := s.drafts.Load(ctx, draft.Key(userID, quizID.String()))
	if !ok || d.CurrentQuestionIndex > len(quiz.Questions) {
		return &model.DraftStatus{}, nil
	}

	updated := d.UpdatedAt
	return &model.DraftStatus{
		Exists:               true,
		CurrentQuestionIndex: d.CurrentQuestionIndex,
		AnsweredCount:        len(d.Answers),
		UpdatedAt:            &updated,
	}, nil
}

// ResetDraft discards the draft and resets a live session back to the rules page.
func (s *SessionService) ResetDraft(ctx context.Context, userID string, quizID uuid.UUID) error {
	key := draft.Key(userID, quizID.String())

	s.mu.Lock()
	live := s.live[key]
	s.mu.Unlock()

	if live != nil {
		// A refused reset leaves the draft alone; it may be all that is left
		// of an attempt whose submission is still in flight.
		if err := live.Session.Do(ctx, session.Reset{}); err != nil && !errors.Is(err, session.ErrClosed) {
			return fmt.Errorf("reset live session: %w", err)
		}
	}

	if err := s.drafts.Clear(ctx, key); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// Live lists the sessions currently open on a quiz, oldest first.
func (s *SessionService) Live(quizID uuid.UUID) []LiveSummary {
	s.mu.Lock()
	sessions := make([]*LiveSession, 0, len(s.live))
	for _, live := range s.live {
		if live.QuizID == quizID {
			sessions = append(sessions, live)
		}
	}
	s.mu.Unlock()

	out := make([]LiveSummary, 0, len(sessions))
	for _, live := range sessions {
		st := live.Session.State()
		out = append(out, LiveSummary{
			UserID:        live.Identity.UserID,
			Username:      live.Identity.Username,
			Phase:         st.Phase,
			AnsweredCount: len(st.Answers),
			CheatCount:    len(st.Cheats),
			OpenedAt:      live.OpenedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (s *SessionService) publish(quizID uuid.UUID, ev cheat.FeedEvent) {
	if s.feed == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.feed.Publish(ctx, quizID.String(), ev); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Str("type", ev.Type).Msg("Live monitor publish failed")
		}
	}()
}

// progressTracker turns session snapshots into monitor events. It runs on
// the session goroutine only.
type progressTracker struct {
	svc       *SessionService
	live      *LiveSession
	answered  int
	submitted bool
}

func (t *progressTracker) observe(u session.Update) {
	snap := u.Snapshot
	id := t.live.Identity

	if snap.Phase == session.PhaseSubmitted && !t.submitted {
		t.submitted = true
		t.svc.publish(t.live.QuizID, cheat.FeedEvent{Type: cheat.FeedSubmitted, UserID: id.UserID, Username: id.Username, Answered: snap.AnsweredCount})
		return
	}
	if snap.Phase == session.PhaseTaking && snap.AnsweredCount != t.answered {
		t.answered = snap.AnsweredCount
		t.svc.publish(t.live.QuizID, cheat.FeedEvent{Type: cheat.FeedProgress, UserID: id.UserID, Username: id.Username, Answered: snap.AnsweredCount})
	}
}
