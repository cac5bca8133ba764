package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/brightclass/quiz-service/internal/services"
	"github.com/brightclass/quiz-service/internal/utils"
	"github.com/brightclass/quiz-service/internal/validator"
)

type HandlerManager struct {
	quizHandler    *QuizHandler
	attemptHandler *AttemptHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	v *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		quizHandler: NewQuizHandler(
			serviceManager.Quiz(),
			serviceManager.Attempt(),
			serviceManager.Import(),
			v,
			logger,
		),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), v, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "quiz-service",
		})
	})

	v1 := router.Group("/api/v1")
	if authMiddleware != nil {
		v1.Use(authMiddleware)
	}
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", hm.quizHandler.CreateQuiz)
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.PUT("/:id", hm.quizHandler.UpdateQuiz)
			quizzes.PUT("/:id/status", hm.quizHandler.UpdateQuizStatus)
			quizzes.GET("/:id/stats", hm.quizHandler.GetQuizStats)

			quizzes.POST("/:id/questions", hm.quizHandler.AddQuestions)
			quizzes.POST("/:id/questions/import", hm.quizHandler.ImportQuestions)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answer", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/complete", hm.attemptHandler.CompleteAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
		}
	}
}
