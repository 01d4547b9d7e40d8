package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ccingram94/galileo-sub000/internal/services"
	"github.com/ccingram94/galileo-sub000/internal/utils"
)

// GradingHandler handles manual grading and result export endpoints.
type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// GradeSubPart records a free-response sub-part score on a submitted attempt
// @Summary Grade one free-response sub-part
// @Tags grading
// @Accept json
// @Produce json
// @Param id path int true "Attempt ID"
// @Param request body services.GradeSubPartRequest true "Score assignment"
// @Success 200 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/grade [post]
func (h *GradingHandler) GradeSubPart(c *gin.Context) {
	h.LogRequest(c, "grade_sub_part")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	var req services.GradeSubPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body", Details: err.Error()})
		return
	}

	resp, err := h.gradingService.GradeSubPart(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err, "grade_sub_part")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ExportResults streams all attempt results for an exam as an Excel workbook
// @Summary Export exam results
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Exam ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/results/export [get]
func (h *GradingHandler) ExportResults(c *gin.Context) {
	h.LogRequest(c, "export_results")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	file, err := h.gradingService.ExportResults(c.Request.Context(), examID, userID)
	if err != nil {
		h.handleServiceError(c, err, "export_results")
		return
	}

	filename := fmt.Sprintf("exam_%d_results_%s.xlsx", examID, time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := file.Write(c.Writer); err != nil {
		utils.LoggerFromContext(c.Request.Context(), h.logger).Error("Failed to write export", "exam_id", examID, "error", err)
	}
}
