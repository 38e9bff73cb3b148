package controller

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github/itish2003/medchat/web"
)

// SetupRouter wires the chat routes onto a new Gin engine.
func SetupRouter(rc *RAGController, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(log))
	router.SetHTMLTemplate(web.Templates())

	router.GET("/", rc.Index)
	router.POST("/get", rc.Chat)
	router.GET("/health", rc.Health)

	return router
}
