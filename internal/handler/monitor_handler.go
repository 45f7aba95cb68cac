package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/response"
	"github.com/stemsi/whitelist-backend/internal/service"
	"github.com/stemsi/whitelist-backend/internal/session"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// MonitorHandler streams live session activity of a quiz to staff.
type MonitorHandler struct {
	rdb      *redis.Client
	quizzes  *service.QuizService
	sessions *service.SessionService
	log      zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	quizzes *service.QuizService,
	sessions *service.SessionService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		quizzes:  quizzes,
		sessions: sessions,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorQuizSSE godoc
// GET /api/v1/staff/quizzes/:quiz_id/monitor
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, quiz)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizMonitorChannel(quizID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Staff attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Staff disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON.
			writeSSE(c, []byte(msg.Payload))

		case <-refreshTicker.C:
			live := h.sessions.Live(quizID)
			if len(live) == 0 {
				continue
			}
			c.SSEvent("message", map[string]interface{}{
				"type": "refresh",
				"data": map[string]interface{}{"sessions": live},
			})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			writeSSE(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, quiz *model.Quiz) {
	live := h.sessions.Live(quiz.ID)

	taking, cheats := 0, 0
	for _, s := range live {
		if s.Phase == session.PhaseTaking {
			taking++
		}
		cheats += s.CheatCount
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"quiz": map[string]interface{}{
				"id":              quiz.ID.String(),
				"title":           quiz.Title,
				"open":            quiz.Open,
				"total_questions": len(quiz.Questions),
				"total_seconds":   quiz.TotalSeconds(),
			},
			"stats": map[string]interface{}{
				"total_connected": len(live),
				"total_taking":    taking,
				"total_cheats":    cheats,
			},
			"sessions": live,
		},
	})
	c.Writer.Flush()
}

func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
