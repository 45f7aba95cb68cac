package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/service"
	"github.com/stemsi/whitelist-backend/internal/session"
	"github.com/stemsi/whitelist-backend/internal/submission"
	ws "github.com/stemsi/whitelist-backend/internal/websocket"
	"github.com/stretchr/testify/require"
)

type stubQuizzes struct{ quiz *model.Quiz }

func (s stubQuizzes) GetQuiz(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	if id != s.quiz.ID {
		return nil, apperr.ErrQuizNotFound
	}
	return s.quiz, nil
}

func (s stubQuizzes) GetOpenQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q, err := s.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.Open {
		return nil, apperr.ErrQuizClosed
	}
	return q, nil
}

type stubLookup struct {
	mu   sync.Mutex
	done map[string]bool
}

func (s *stubLookup) ExistsForUser(_ context.Context, userID string, _ uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[userID], nil
}

type stubSubmitter struct{}

func (stubSubmitter) Submit(context.Context, submission.Request) (uuid.UUID, error) {
	return uuid.New(), nil
}

type wsFixture struct {
	server *httptest.Server
	quiz   *model.Quiz
	lookup *stubLookup
}

func newWSFixture(t *testing.T, open bool) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quiz := &model.Quiz{
		ID:    uuid.New(),
		Title: "Fire Department Application",
		Open:  open,
		Questions: []model.Question{
			{ID: uuid.New(), Prompt: "Why fire?", TimeLimit: 60, OrderNum: 1},
		},
	}
	lookup := &stubLookup{done: map[string]bool{}}
	sessions := service.NewSessionService(stubQuizzes{quiz}, lookup, draft.NewMemoryStore(), stubSubmitter{}, nil, time.Minute, zerolog.Nop())
	sessions.SetTicker(func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() {}
	})

	h := NewWSHandler(sessions, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/ws/v1/quizzes/:quiz_id/session", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{
			TokenType: service.TokenTypeApplicant,
			UserID:    c.Query("user"),
			Username:  "applicant",
		})
		c.Next()
	}, h.QuizSessionStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsFixture{server: srv, quiz: quiz, lookup: lookup}
}

func (f *wsFixture) dial(t *testing.T, user string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/v1/quizzes/" + f.quiz.ID.String() + "/session?user=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readUntil(t *testing.T, conn *websocket.Conn, pred func(ws.ResponsePayload) bool) ws.ResponsePayload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var msg ws.ResponsePayload
		require.NoError(t, conn.ReadJSON(&msg))
		if pred(msg) {
			return msg
		}
	}
}

func phaseOf(t *testing.T, msg ws.ResponsePayload) session.Phase {
	t.Helper()
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	return snap.Phase
}

func TestQuizSessionStreamCompletesQuiz(t *testing.T) {
	f := newWSFixture(t, true)
	conn, _, err := f.dial(t, "111")
	require.NoError(t, err)

	first := readUntil(t, conn, func(m ws.ResponsePayload) bool { return m.Event == ws.EventState })
	require.Equal(t, session.PhaseRules, phaseOf(t, first))

	for _, msg := range []ws.RequestPayload{
		{Action: ws.ActionCaptcha, Token: "tok"},
		{Action: ws.ActionStart},
		{Action: ws.ActionStage, Text: "to help people"},
		{Action: ws.ActionAnswer},
	} {
		require.NoError(t, conn.WriteJSON(msg))
	}

	readUntil(t, conn, func(m ws.ResponsePayload) bool {
		return m.Event == ws.EventState && phaseOf(t, m) == session.PhaseSubmitted
	})
}

func TestQuizSessionStreamRejectsBadActions(t *testing.T) {
	f := newWSFixture(t, true)
	conn, _, err := f.dial(t, "222")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: "teleport"}))
	msg := readUntil(t, conn, func(m ws.ResponsePayload) bool { return m.Event == ws.EventError })
	require.Equal(t, "INVALID_PAYLOAD", msg.Error.Code)

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: ws.ActionStage, Text: strings.Repeat("x", 4001)}))
	msg = readUntil(t, conn, func(m ws.ResponsePayload) bool { return m.Event == ws.EventError })
	require.Equal(t, "VALIDATION_ERROR", msg.Error.Code)

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: ws.ActionStart}))
	msg = readUntil(t, conn, func(m ws.ResponsePayload) bool { return m.Event == ws.EventError })
	require.Equal(t, "CAPTCHA_REQUIRED", msg.Error.Code)

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPing}))
	readUntil(t, conn, func(m ws.ResponsePayload) bool { return m.Event == ws.EventPong })
}

func TestQuizSessionStreamSupersedesOlderTab(t *testing.T) {
	f := newWSFixture(t, true)
	older, _, err := f.dial(t, "333")
	require.NoError(t, err)
	readUntil(t, older, func(m ws.ResponsePayload) bool { return m.Event == ws.EventState })

	_, _, err = f.dial(t, "333")
	require.NoError(t, err)

	readUntil(t, older, func(m ws.ResponsePayload) bool { return m.Event == ws.EventSuperseded })
}

func TestQuizSessionStreamRefusesBeforeUpgrade(t *testing.T) {
	closed := newWSFixture(t, false)
	_, resp, err := closed.dial(t, "444")
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	open := newWSFixture(t, true)
	open.lookup.done["555"] = true
	_, resp, err = open.dial(t, "555")
	require.Error(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}
