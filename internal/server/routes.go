package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/online", s.onlineHandler)

	r.POST("/documents", s.uploadDocumentHandler)
	r.GET("/documents", s.listDocumentsHandler)
	r.GET("/documents/:id", s.getDocumentHandler)
	r.GET("/documents/:id/status", s.documentStatusHandler)

	// Invoked by the external scheduler, never by clients
	internal := r.Group("/internal", s.TriggerMiddleware())
	internal.POST("/process-jobs", s.processJobsHandler)

	return r
}
