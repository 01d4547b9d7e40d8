package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ccingram94/galileo-sub000/internal/services"
	"github.com/ccingram94/galileo-sub000/internal/utils"
)

// ExamHandler handles exam authoring and lookup endpoints.
type ExamHandler struct {
	BaseHandler
	examService    services.ExamService
	attemptService services.AttemptService
}

func NewExamHandler(examService services.ExamService, attemptService services.AttemptService, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler:    NewBaseHandler(logger),
		examService:    examService,
		attemptService: attemptService,
	}
}

// CreateExam creates a new exam definition
// @Summary Create an exam
// @Tags exams
// @Accept json
// @Produce json
// @Param request body services.CreateExamRequest true "Exam definition"
// @Success 201 {object} services.ExamResponse
// @Failure 400 {object} ErrorResponse
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	h.LogRequest(c, "create_exam")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	var req services.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body", Details: err.Error()})
		return
	}

	resp, err := h.examService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err, "create_exam")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetExam returns one exam definition
// @Summary Get an exam by id
// @Tags exams
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {object} services.ExamResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	h.LogRequest(c, "get_exam")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	resp, err := h.examService.GetByID(c.Request.Context(), examID, userID)
	if err != nil {
		h.handleServiceError(c, err, "get_exam")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListAttempts returns every attempt recorded for an exam
// @Summary List attempts for an exam
// @Tags exams
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {array} services.AttemptResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/attempts [get]
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	h.LogRequest(c, "list_attempts")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	resp, err := h.attemptService.ListByExam(c.Request.Context(), examID, userID)
	if err != nil {
		h.handleServiceError(c, err, "list_attempts")
		return
	}

	c.JSON(http.StatusOK, resp)
}
