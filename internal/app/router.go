package app

import (
	"phrasal_tutor_backend/internal/middleware"
	"phrasal_tutor_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services) {
	registerDocsRoutes(router)

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 会话 WebSocket，鉴权由 ChatProxy 完成
	router.GET("/ws/chat", c.chat.HandleWS)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(s.auth))
	{
		a.registerLearnerRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/curriculum", c.progress.GetCurriculum)
	}
}

func (a *App) registerLearnerRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/progress", c.progress.GetProgress)
	group.POST("/progress/advance", c.progress.Advance)

	group.POST("/gap-fill/:conversation_id", c.gapFill.Generate)
	group.GET("/conversations/:conversation_id/messages", c.chat.GetMessages)
}

// registerDocsRoutes 挂载 Swagger UI，文档由 swag init 生成后注册
func registerDocsRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
}
