package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ccingram94/galileo-sub000/internal/config"
	"github.com/ccingram94/galileo-sub000/internal/models"
	"github.com/ccingram94/galileo-sub000/internal/services"
	"github.com/ccingram94/galileo-sub000/internal/utils"
)

// HandlerManager owns all HTTP handlers and the auth middleware.
type HandlerManager struct {
	exam    *ExamHandler
	attempt *AttemptHandler
	grading *GradingHandler
	auth    *AuthMiddleware

	services services.ServiceManager
	logger   utils.Logger
}

func NewHandlerManager(sm services.ServiceManager, cfg *config.Config, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		exam:     NewExamHandler(sm.Exam(), sm.Attempt(), logger),
		attempt:  NewAttemptHandler(sm.Attempt(), logger),
		grading:  NewGradingHandler(sm.Grading(), logger),
		auth:     NewAuthMiddleware(cfg),
		services: sm,
		logger:   logger,
	}
}

// SetupRoutes registers every route on the router.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.auth.AuthMiddleware())
	{
		exams := v1.Group("/exams")
		{
			exams.POST("", hm.auth.RequireRoleMiddleware(models.RoleTeacher), hm.exam.CreateExam)
			exams.GET("/:id", hm.exam.GetExam)
			exams.GET("/:id/attempts", hm.auth.RequireRoleMiddleware(models.RoleTeacher), hm.exam.ListAttempts)
			exams.GET("/:id/results/export", hm.auth.RequireRoleMiddleware(models.RoleTeacher), hm.grading.ExportResults)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attempt.StartAttempt)
			attempts.GET("/:id", hm.attempt.GetAttempt)
			attempts.GET("/:id/time", hm.attempt.GetTimeRemaining)
			attempts.PUT("/:id/progress", hm.attempt.SaveProgress)
			attempts.POST("/:id/submit", hm.attempt.SubmitAttempt)
			attempts.POST("/:id/grade", hm.auth.RequireRoleMiddleware(models.RoleTeacher), hm.grading.GradeSubPart)
		}
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	if err := hm.services.HealthCheck(c.Request.Context()); err != nil {
		hm.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "exam-attempt-service"})
}
