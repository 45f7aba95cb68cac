package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/response"
	"github.com/stemsi/whitelist-backend/internal/service"
)

// QuizHandler serves the applicant rules page.
type QuizHandler struct {
	sessions *service.SessionService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(sessions *service.SessionService) *QuizHandler {
	return &QuizHandler{sessions: sessions}
}

// GetOverview godoc
// GET /api/v1/quizzes/:quiz_id
func (h *QuizHandler) GetOverview(c *gin.Context) {
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

	overview, err := h.sessions.Overview(c.Request.Context(), claims.Identity(), quizID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": overview})
}

// GetDraft godoc
// GET /api/v1/quizzes/:quiz_id/draft
// Reports whether the rules page should offer to resume.
func (h *QuizHandler) GetDraft(c *gin.Context) {
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

	status, err := h.sessions.DraftStatus(c.Request.Context(), claims.UserID, quizID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"draft": status})
}

// DeleteDraft godoc
// DELETE /api/v1/quizzes/:quiz_id/draft
// Starts over: drops the draft and resets any live session.
func (h *QuizHandler) DeleteDraft(c *gin.Context) {
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

	if err := h.sessions.ResetDraft(c.Request.Context(), claims.UserID, quizID); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "draft cleared"})
}
