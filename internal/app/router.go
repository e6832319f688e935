package app

import (
	"quiz_engine/docs"
	"quiz_engine/internal/config"
	"quiz_engine/internal/middleware"
	"quiz_engine/internal/model"
	"quiz_engine/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerQuizRoutes(api, c)
	}
}

// registerQuizRoutes 同一位置只能使用同名参数（gin 限制）。
// 前两个路由中 :id 为课程 ID，其余为测验 ID
func (a *App) registerQuizRoutes(api *gin.RouterGroup, c *controllers) {
	staff := middleware.RoleMiddleware(model.Teacher)
	student := middleware.RoleMiddleware(model.Student)

	quizzes := api.Group("/quizzes")
	{
		quizzes.POST("/:id", staff, c.quiz.CreateQuiz)
		quizzes.GET("/:id", c.quiz.ListQuizzes)
		quizzes.GET("/quiz/:id", c.quiz.GetQuiz)

		quizzes.POST("/:id/submit", c.quiz.SubmitQuiz)
		quizzes.GET("/:id/my-result", c.quiz.MyResult)
		quizzes.GET("/:id/attempts-remaining", student, c.quiz.AttemptsRemaining)

		quizzes.GET("/:id/submissions", staff, c.quiz.ListSubmissions)
		quizzes.GET("/:id/student/:studentId/attempts", staff, c.quiz.StudentAttempts)
		quizzes.GET("/:id/export", staff, c.quiz.ExportResults)
	}
}
