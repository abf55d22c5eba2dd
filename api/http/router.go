package http

import (
	"github.com/gin-gonic/gin"

	"cartograph/api/api/http/controller/mapper"
	"cartograph/api/api/interceptor"
	"cartograph/api/api/ws"
	"cartograph/api/log"
)

func Routers(e *gin.RouterGroup, hub *ws.Hub, secret []byte) {
	publicGroup := e.Group("/public")
	publicGroup.GET("health", mapper.Health)

	e.GET("/ws", interceptor.TokenInterceptor(secret), hub.Serve)

	mapperGroup := e.Group("/mapper", interceptor.OperatorInterceptor(secret))
	mapperGroup.GET("/status", mapper.Status)
	mapperGroup.GET("/players/:uid", mapper.Player)
	mapperGroup.POST("/restore", mapper.Restore)
	mapperGroup.POST("/save", mapper.Save)
	mapperGroup.POST("/tables", mapper.PlaceTable)
	mapperGroup.DELETE("/tables/:pos", mapper.RemoveTable)

	log.Info("routes registered: ", publicGroup.BasePath(), " ", mapperGroup.BasePath())
}
