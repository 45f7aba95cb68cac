package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/cheat"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/response"
	"github.com/stemsi/whitelist-backend/internal/service"
	"github.com/stemsi/whitelist-backend/internal/session"
	"github.com/stemsi/whitelist-backend/internal/validator"
	ws "github.com/stemsi/whitelist-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a quiz session over a WebSocket.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// QuizSessionStream godoc
// WS /ws/v1/quizzes/:quiz_id/session
// Opens the caller's session and relays client actions and state snapshots.
func (h *WSHandler) QuizSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	identity := claims.Identity()
	out := make(chan ws.ResponsePayload, 64)
	live, err := h.sessions.Open(c.Request.Context(), identity, quizID, c.ClientIP(), func(u session.Update) {
		if u.Err != nil {
			enqueue(out, errorPayload(u.Err))
		}
		enqueue(out, statePayload(u.Snapshot))
	})
	if err != nil {
		response.FailError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.sessions.Close(live)
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", identity.UserID).
		Str("quiz_id", quizID.String()).
		Logger()
	wsLog.Info().Msg("Applicant connected")

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go h.writeLoop(conn, live, out, stop, writerDone, wsLog)

	h.readLoop(conn, live, out, wsLog)

	close(stop)
	h.sessions.Close(live)
	<-writerDone
}

func (h *WSHandler) readLoop(conn *websocket.Conn, live *service.LiveSession, out chan ws.ResponsePayload, wsLog zerolog.Logger) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if fields := validator.Struct(&msg); fields != nil {
			enqueue(out, ws.ResponsePayload{Event: ws.EventError, Error: &ws.ErrorBody{Code: string(response.ErrValidation), Message: firstField(fields)}})
			continue
		}

		if msg.Action == ws.ActionPing {
			enqueue(out, ws.ResponsePayload{Event: ws.EventPong})
			continue
		}

		ev, code, reason := toEvent(msg)
		if ev == nil {
			enqueue(out, ws.ResponsePayload{Event: ws.EventError, Error: &ws.ErrorBody{Code: string(code), Message: reason}})
			continue
		}

		if err := live.Session.Send(context.Background(), ev); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of conn.
func (h *WSHandler) writeLoop(conn *websocket.Conn, live *service.LiveSession, out <-chan ws.ResponsePayload, stop, done chan struct{}, wsLog zerolog.Logger) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case msg := <-out:
			if err := ws.WriteTyped(conn, msg); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				conn.Close()
				return
			}
		case <-live.Session.Done():
			select {
			case <-stop:
				return
			default:
			}
			wsLog.Info().Msg("Session superseded by a newer connection")
			ws.WriteTyped(conn, ws.ResponsePayload{Event: ws.EventSuperseded})
			ws.WriteClose(conn, websocket.ClosePolicyViolation, "session opened elsewhere")
			conn.Close()
			return
		}
	}
}

// toEvent maps a client action to a session event. A nil event comes with
// the rejection code and reason.
func toEvent(msg ws.RequestPayload) (session.Event, response.ErrCode, string) {
	now := time.Now()
	switch msg.Action {
	case ws.ActionCaptcha:
		if msg.Token == "" {
			return nil, response.ErrCaptchaRequired, response.GetMessage(response.ErrCaptchaRequired)
		}
		return session.CaptchaSolved{Token: msg.Token, At: now}, "", ""
	case ws.ActionCaptchaExpired:
		return session.CaptchaExpired{}, "", ""
	case ws.ActionStart:
		return session.Begin{At: now}, "", ""
	case ws.ActionStage:
		return session.Stage{Text: msg.Text}, "", ""
	case ws.ActionAnswer:
		return session.SubmitAnswer{}, "", ""
	case ws.ActionVisibility:
		v := cheat.Visibility(msg.State)
		if v != cheat.Hidden && v != cheat.Visible {
			return nil, response.ErrInvalidPayload, "state must be hidden or visible"
		}
		return session.VisibilityChanged{State: v}, "", ""
	case ws.ActionRetrySubmit:
		return session.RetrySubmit{}, "", ""
	case ws.ActionReset:
		return session.Reset{}, "", ""
	}
	return nil, response.ErrInvalidPayload, "unknown action: " + string(msg.Action)
}

func statePayload(snap session.Snapshot) ws.ResponsePayload {
	raw, _ := json.Marshal(snap)
	return ws.ResponsePayload{Event: ws.EventState, Data: raw}
}

func errorPayload(err error) ws.ResponsePayload {
	_, code := response.Classify(err)
	return ws.ResponsePayload{
		Event: ws.EventError,
		Error: &ws.ErrorBody{Code: string(code), Message: response.Message(err, code)},
	}
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return ""
}

// enqueue drops the message when the client is not keeping up. Snapshots
// carry the full state, so the next one repairs the gap.
func enqueue(out chan ws.ResponsePayload, msg ws.ResponsePayload) {
	select {
	case out <- msg:
	default:
	}
}
