package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/cheat"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/session"
	"github.com/stemsi/whitelist-backend/internal/submission"
	"github.com/stretchr/testify/require"
)

type fakeQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*model.Quiz
	reads   int
}

func newFakeQuizStore(quizzes ...*model.Quiz) *fakeQuizStore {
	f := &fakeQuizStore{quizzes: make(map[uuid.UUID]*model.Quiz)}
	for _, q := range quizzes {
		f.quizzes[q.ID] = q
	}
	return f
}

func (f *fakeQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	q, ok := f.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *q
	return &copied, nil
}

func (f *fakeQuizStore) ListOpen(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, q := range f.quizzes {
		if q.Open {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeQuizStore) SetOpen(_ context.Context, id uuid.UUID, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	q.Open = open
	return nil
}

func testQuiz(open bool, limits ...int) *model.Quiz {
	q := &model.Quiz{ID: uuid.New(), Title: "Police Department Application", Open: open}
	for i, limit := range limits {
		q.Questions = append(q.Questions, model.Question{
			ID:        uuid.New(),
			Prompt:    "Prompt " + string(rune('A'+i)),
			TimeLimit: limit,
			OrderNum:  i + 1,
		})
	}
	return q
}

func newQuizService(t *testing.T, store QuizStore) (*QuizService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewQuizService(store, rdb, time.Hour, zerolog.Nop()), mr
}

func TestQuizServiceCachesPayload(t *testing.T) {
	quiz := testQuiz(true, 60, 30)
	store := newFakeQuizStore(quiz)
	svc, mr := newQuizService(t, store)
	ctx := context.Background()

	got, err := svc.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	require.True(t, mr.Exists(config.CacheKey.QuizPayloadKey(quiz.ID.String())))

	_, err = svc.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	require.Equal(t, 1, store.reads, "second read is served from cache")
}

func TestQuizServiceDiscardsCorruptCache(t *testing.T) {
	quiz := testQuiz(true, 60)
	store := newFakeQuizStore(quiz)
	svc, mr := newQuizService(t, store)
	require.NoError(t, mr.Set(config.CacheKey.QuizPayloadKey(quiz.ID.String()), "{not json"))

	got, err := svc.GetQuiz(context.Background(), quiz.ID)
	require.NoError(t, err)
	require.Equal(t, quiz.Title, got.Title)
	require.Equal(t, 1, store.reads)
}

func TestQuizServiceOpenChecks(t *testing.T) {
	open := testQuiz(true, 60)
	closed := testQuiz(false, 60)
	empty := testQuiz(true)
	svc, _ := newQuizService(t, newFakeQuizStore(open, closed, empty))
	ctx := context.Background()

	_, err := svc.GetOpenQuiz(ctx, open.ID)
	require.NoError(t, err)

	_, err = svc.GetOpenQuiz(ctx, closed.ID)
	require.ErrorIs(t, err, apperr.ErrQuizClosed)

	_, err = svc.GetOpenQuiz(ctx, empty.ID)
	require.ErrorIs(t, err, ErrNoQuestions)

	_, err = svc.GetOpenQuiz(ctx, uuid.New())
	require.ErrorIs(t, err, apperr.ErrQuizNotFound)
}

func TestQuizServiceSetOpenInvalidatesCache(t *testing.T) {
	quiz := testQuiz(true, 60)
	svc, mr := newQuizService(t, newFakeQuizStore(quiz))
	ctx := context.Background()

	_, err := svc.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SetOpen(ctx, quiz.ID, false))
	require.False(t, mr.Exists(config.CacheKey.QuizPayloadKey(quiz.ID.String())))

	_, err = svc.GetOpenQuiz(ctx, quiz.ID)
	require.ErrorIs(t, err, apperr.ErrQuizClosed)

	require.ErrorIs(t, svc.SetOpen(ctx, uuid.New(), true), apperr.ErrQuizNotFound)
}

func TestQuizServicePrewarm(t *testing.T) {
	open := testQuiz(true, 60)
	closed := testQuiz(false, 60)
	svc, mr := newQuizService(t, newFakeQuizStore(open, closed))

	require.NoError(t, svc.PrewarmAllCaches(context.Background()))
	require.True(t, mr.Exists(config.CacheKey.QuizPayloadKey(open.ID.String())))
	require.False(t, mr.Exists(config.CacheKey.QuizPayloadKey(closed.ID.String())))

	raw, err := mr.Get(config.CacheKey.QuizPayloadKey(open.ID.String()))
	require.NoError(t, err)
	var cached model.Quiz
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Equal(t, open.ID, cached.ID)
}

type fakeSubmissionRepo struct {
	items  []model.SubmissionSummary
	byID   map[uuid.UUID]*model.Submission
	limit  int
	offset int
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return sub, nil
}

func (f *fakeSubmissionRepo) ListByQuiz(_ context.Context, _ uuid.UUID, limit, offset int) ([]model.SubmissionSummary, int, error) {
	f.limit, f.offset = limit, offset
	if offset >= len(f.items) {
		return nil, len(f.items), nil
	}
	end := min(offset+limit, len(f.items))
	return f.items[offset:end], len(f.items), nil
}

func TestSubmissionServiceList(t *testing.T) {
	repo := &fakeSubmissionRepo{}
	for i := 0; i < 45; i++ {
		repo.items = append(repo.items, model.SubmissionSummary{ID: uuid.New()})
	}
	svc := NewSubmissionService(repo)

	items, page, err := svc.List(context.Background(), uuid.New(), 3, 20)
	require.NoError(t, err)
	require.Len(t, items, 5)
	require.Equal(t, 40, repo.offset)
	require.Equal(t, 45, page.TotalItems)
	require.Equal(t, 3, page.TotalPages)

	items, page, err = svc.List(context.Background(), uuid.New(), 0, 500)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 100, page.PerPage)
	require.Len(t, items, 45)

	items, _, err = svc.List(context.Background(), uuid.New(), 9, 20)
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestSubmissionServiceGet(t *testing.T) {
	sub := &model.Submission{ID: uuid.New(), Username: "applicant"}
	svc := NewSubmissionService(&fakeSubmissionRepo{byID: map[uuid.UUID]*model.Submission{sub.ID: sub}})

	got, err := svc.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, "applicant", got.Username)

	_, err = svc.Get(context.Background(), uuid.New())
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

type fakeLookup struct {
	mu        sync.Mutex
	submitted map[string]bool
}

func (f *fakeLookup) ExistsForUser(_ context.Context, userID string, quizID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[userID+"/"+quizID.String()], nil
}

type okSubmitter struct{}

func (okSubmitter) Submit(context.Context, submission.Request) (uuid.UUID, error) {
	return uuid.New(), nil
}

// gatedSubmitter holds every submission until release is closed.
type gatedSubmitter struct {
	release chan struct{}
	err     error
}

func (g *gatedSubmitter) Submit(context.Context, submission.Request) (uuid.UUID, error) {
	<-g.release
	if g.err != nil {
		return uuid.Nil, g.err
	}
	return uuid.New(), nil
}

type recordingFeed struct {
	mu     sync.Mutex
	events []cheat.FeedEvent
}

func (f *recordingFeed) Publish(_ context.Context, _ string, ev cheat.FeedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *recordingFeed) PublishCheat(ctx context.Context, quizID, userID string, attempt model.CheatAttempt) error {
	return f.Publish(ctx, quizID, cheat.FeedEvent{Type: cheat.FeedCheat, UserID: userID, Method: attempt.Method})
}

func (f *recordingFeed) has(kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.Type == kind {
			return true
		}
	}
	return false
}

type sessionFixture struct {
	svc    *SessionService
	quiz   *model.Quiz
	drafts *draft.MemoryStore
	lookup *fakeLookup
	feed   *recordingFeed
}

func newSessionFixture(t *testing.T, limits ...int) *sessionFixture {
	t.Helper()
	return newSessionFixtureWith(t, okSubmitter{}, limits...)
}

func newSessionFixtureWith(t *testing.T, submitter session.Submitter, limits ...int) *sessionFixture {
	t.Helper()
	quiz := testQuiz(true, limits...)
	quizzes, _ := newQuizService(t, newFakeQuizStore(quiz))
	f := &sessionFixture{
		quiz:   quiz,
		drafts: draft.NewMemoryStore(),
		lookup: &fakeLookup{submitted: map[string]bool{}},
		feed:   &recordingFeed{},
	}
	f.svc = NewSessionService(quizzes, f.lookup, f.drafts, submitter, f.feed, time.Minute, zerolog.Nop())
	f.svc.SetTicker(func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() {}
	})
	return f
}

var applicant = model.Identity{UserID: "5550001", Username: "applicant", HighestRole: "Civilian"}

func TestSessionServiceRejectsSecondSubmission(t *testing.T) {
	f := newSessionFixture(t, 60)
	f.lookup.submitted[applicant.UserID+"/"+f.quiz.ID.String()] = true

	_, err := f.svc.Open(context.Background(), applicant, f.quiz.ID, "", nil)
	require.ErrorIs(t, err, apperr.ErrAlreadySubmitted)

	overview, err := f.svc.Overview(context.Background(), applicant, f.quiz.ID)
	require.NoError(t, err)
	require.True(t, overview.AlreadySubmitted)
	require.Equal(t, 60, overview.TotalSeconds)
}

func TestSessionServiceRunsSessionToSubmission(t *testing.T) {
	f := newSessionFixture(t, 60)
	updates := make(chan session.Update, 64)

	live, err := f.svc.Open(context.Background(), applicant, f.quiz.ID, "198.51.100.4", func(u session.Update) { updates <- u })
	require.NoError(t, err)
	t.Cleanup(func() { f.svc.Close(live) })

	ctx := context.Background()
	require.NoError(t, live.Session.Send(ctx, session.CaptchaSolved{Token: "tok", At: time.Now()}))
	require.NoError(t, live.Session.Send(ctx, session.Begin{At: time.Now()}))
	require.NoError(t, live.Session.Send(ctx, session.Stage{Text: "yes"}))
	require.NoError(t, live.Session.Send(ctx, session.SubmitAnswer{}))

	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case u := <-updates:
			done = u.Snapshot.Phase == session.PhaseSubmitted
		case <-deadline:
			t.Fatal("session never submitted")
		}
	}

	require.Eventually(t, func() bool { return f.feed.has(cheat.FeedJoin) }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.feed.has(cheat.FeedSubmitted) }, time.Second, 10*time.Millisecond)
}

func TestSessionServiceLastTabWins(t *testing.T) {
	f := newSessionFixture(t, 60)
	ctx := context.Background()

	first, err := f.svc.Open(ctx, applicant, f.quiz.ID, "", nil)
	require.NoError(t, err)
	second, err := f.svc.Open(ctx, applicant, f.quiz.ID, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.svc.Close(second) })

	select {
	case <-first.Session.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded session still running")
	}

	f.svc.Close(first)
	live := f.svc.Live(f.quiz.ID)
	require.Len(t, live, 1)
	require.Equal(t, applicant.UserID, live[0].UserID)
	require.Equal(t, session.PhaseRules, live[0].Phase)
}

func TestSessionServiceDraftStatusAndReset(t *testing.T) {
	f := newSessionFixture(t, 60, 30)
	ctx := context.Background()
	key := draft.Key(applicant.UserID, f.quiz.ID.String())

	status, err := f.svc.DraftStatus(ctx, applicant.UserID, f.quiz.ID)
	require.NoError(t, err)
	require.False(t, status.Exists)

	f.drafts.Save(ctx, key, model.Draft{
		Answers:              []model.Answer{{QuestionID: f.quiz.Questions[0].ID, Response: "earlier"}},
		CurrentQuestionIndex: 1,
	})

	status, err = f.svc.DraftStatus(ctx, applicant.UserID, f.quiz.ID)
	require.NoError(t, err)
	require.True(t, status.Exists)
	require.Equal(t, 1, status.AnsweredCount)
	require.NotNil(t, status.UpdatedAt)

	live, err := f.svc.Open(ctx, applicant, f.quiz.ID, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.svc.Close(live) })
	require.True(t, live.Session.Snapshot().Resumable)

	require.NoError(t, f.svc.ResetDraft(ctx, applicant.UserID, f.quiz.ID))
	require.False(t, f.drafts.Has(key))
	require.Eventually(t, func() bool { return !live.Session.Snapshot().Resumable }, time.Second, 10*time.Millisecond)
}

func TestSessionServiceResetRefusedWhileSubmitting(t *testing.T) {
	gate := &gatedSubmitter{release: make(chan struct{}), err: apperr.Persistence(errors.New("connection refused"))}
	f := newSessionFixtureWith(t, gate, 60)
	ctx := context.Background()
	key := draft.Key(applicant.UserID, f.quiz.ID.String())

	live, err := f.svc.Open(ctx, applicant, f.quiz.ID, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.svc.Close(live) })

	require.NoError(t, live.Session.Send(ctx, session.CaptchaSolved{Token: "tok", At: time.Now()}))
	require.NoError(t, live.Session.Send(ctx, session.Begin{At: time.Now()}))
	require.NoError(t, live.Session.Send(ctx, session.Stage{Text: "final"}))
	require.NoError(t, live.Session.Send(ctx, session.SubmitAnswer{}))
	require.Eventually(t, func() bool { return live.Session.Snapshot().Submitting }, time.Second, 10*time.Millisecond)

	err = f.svc.ResetDraft(ctx, applicant.UserID, f.quiz.ID)
	require.ErrorIs(t, err, apperr.ErrSubmitInFlight)
	require.True(t, f.drafts.Has(key), "draft kept while the submission is in flight")

	close(gate.release)
	require.Eventually(t, func() bool { return !live.Session.Snapshot().Submitting }, time.Second, 10*time.Millisecond)

	snap := live.Session.Snapshot()
	require.Equal(t, session.PhaseTaking, snap.Phase)
	require.Equal(t, 1, snap.AnsweredCount)
	require.True(t, f.drafts.Has(key), "failed submission can still be retried")
}

func TestSessionServiceCloseAnnouncesLeave(t *testing.T) {
	f := newSessionFixture(t, 60)

	live, err := f.svc.Open(context.Background(), applicant, f.quiz.ID, "", nil)
	require.NoError(t, err)
	f.svc.Close(live)

	require.Empty(t, f.svc.Live(f.quiz.ID))
	require.Eventually(t, func() bool { return f.feed.has(cheat.FeedLeft) }, time.Second, 10*time.Millisecond)
}
