package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rag/api/handlers"
	"github.com/feichai0017/pdf-rag/api/middleware"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

// SetupRoutes registers every endpoint under /api.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string, log logger.Logger) {
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(allowOrigins))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/upload", h.Document.Upload)
		api.POST("/query", h.Document.Query)
		api.GET("/status/:id", h.Document.GetStatus)
		api.GET("/documents", h.Document.ListDocuments)
		api.POST("/cleanup", h.Document.Cleanup)
	}
}
