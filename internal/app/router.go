package app

import (
	"exam_engine_backend/docs"
	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/middleware"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/auth/me", c.auth.Me)

		// 学生端
		authGroup.GET("/courses/:courseId/assessment", c.assessment.ForCourse)
		authGroup.GET("/assessments/:id/result", c.session.Result)

		session := authGroup.Group("/assessments/:id/session")
		{
			session.POST("", c.session.Start)
			session.GET("", c.session.View)
			session.POST("/goto", c.session.GoToQuestion)
			session.POST("/next", c.session.Next)
			session.POST("/previous", c.session.Previous)
			session.PUT("/answer", c.session.SetAnswer)
			session.POST("/run", c.session.RunCode)
			session.POST("/submit", c.session.Submit)
			session.POST("/retry", c.session.RetrySubmit)
		}

		// 教师端
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Instructor))
		{
			teacher.POST("/assessments", c.assessment.Create)
			teacher.GET("/assessments", c.assessment.List)
			teacher.GET("/assessments/:id", c.assessment.Get)
			teacher.PUT("/assessments/:id", c.assessment.Update)
			teacher.DELETE("/assessments/:id", c.assessment.Delete)
			teacher.POST("/assessments/:id/publish", c.assessment.Publish)

			teacher.POST("/assessments/:id/questions", c.assessment.AddQuestion)
			teacher.PUT("/assessments/:id/questions/:questionId", c.assessment.UpdateQuestion)
			teacher.DELETE("/assessments/:id/questions/:questionId", c.assessment.DeleteQuestion)

			teacher.GET("/assessments/:id/submissions", c.grading.ListSubmissions)
			teacher.GET("/submissions/:id", c.grading.SubmissionDetail)
			teacher.PUT("/submissions/:id/score", c.grading.SetScore)
			teacher.POST("/submissions/:id/finalize", c.grading.Finalize)
		}
	}
}
