package api

import (
	"Fitlink/internal/api/config"
	"Fitlink/internal/api/middleware"
	"Fitlink/internal/pkg/logger"
	"Fitlink/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(config.Cfg.Server.TrustedProxies)

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			response.Success(c, nil)
		})

		// 实时会话入口；鉴权由连接内首条 auth 帧完成
		apiGroup.GET("/chat", group.WsHandler.Connect)
	}

	return r
}
