package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ccingram94/galileo-sub000/internal/services"
	"github.com/ccingram94/galileo-sub000/internal/utils"
	"github.com/ccingram94/galileo-sub000/internal/validator"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c.Request.Context(), h.logger).Info(msg, args...)
}

// parseIDParam reads a positive integer path parameter, writing the 400
// itself. Zero means the response is already sent.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error, operation string) {
	var permErr *services.PermissionError
	var availErr *services.AvailabilityError
	var valErr *services.ValidationError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.Is(err, services.ErrExamNotFound),
		errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrAttemptLimitExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "No attempts remaining"})

	case errors.Is(err, services.ErrStructureEmpty):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: "Exam has no questions"})

	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt already submitted"})

	case errors.As(err, &availErr):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: availErr.Error()})

	case errors.As(err, &permErr):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Permission denied"})

	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: valErr.Error()})

	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: fieldErrs.Error()})

	default:
		utils.LoggerFromContext(c.Request.Context(), h.logger).Error("Unhandled service error", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
