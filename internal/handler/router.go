package handler

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"

	"music_police/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// NewRouter registers every route on a fresh engine
func NewRouter(h *SlackHandler, skipRetries bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinLogMiddleware())
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	listening := []gin.HandlerFunc{h.HandleEvents}
	if skipRetries {
		listening = append([]gin.HandlerFunc{MarkSlackRetry()}, listening...)
	}
	router.GET("/listening", listening...)
	router.POST("/listening", listening...)

	router.GET("/thanks", h.HandleThanks)
	router.POST("/thanks", h.HandleThanks)
	router.GET("/install", h.HandleInstall)
	router.GET("/healthz", HandleHealth)

	return router
}
