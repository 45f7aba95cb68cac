package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/response"
	"github.com/stemsi/whitelist-backend/internal/service"
	"github.com/stemsi/whitelist-backend/internal/validator"
)

// StaffHandler serves submission review and quiz administration.
type StaffHandler struct {
	quizzes     *service.QuizService
	submissions *service.SubmissionService
	sessions    *service.SessionService
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(quizzes *service.QuizService, submissions *service.SubmissionService, sessions *service.SessionService) *StaffHandler {
	return &StaffHandler{
		quizzes:     quizzes,
		submissions: submissions,
		sessions:    sessions,
	}
}

// ListSubmissions godoc
// GET /api/v1/staff/quizzes/:quiz_id/submissions
func (h *StaffHandler) ListSubmissions(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var query model.ListSubmissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	items, pagination, err := h.submissions.List(c.Request.Context(), quizID, query.Page, query.PerPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": items}, pagination)
}

// GetSubmission godoc
// GET /api/v1/staff/submissions/:id
func (h *StaffHandler) GetSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sub, err := h.submissions.Get(c.Request.Context(), id)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub, "flagged": sub.Flagged()})
}

// UpdateQuizStatus godoc
// PATCH /api/v1/staff/quizzes/:quiz_id
func (h *StaffHandler) UpdateQuizStatus(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateQuizStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.quizzes.SetOpen(c.Request.Context(), quizID, *req.Open); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz_id": quizID, "open": *req.Open})
}

// ListLiveSessions godoc
// GET /api/v1/staff/quizzes/:quiz_id/live
func (h *StaffHandler) ListLiveSessions(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": h.sessions.Live(quizID)})
}
