package api

import (
	"github.com/gin-gonic/gin"

	"github.com/akumuli/akumulid-edge/internal/api/middleware"
	"github.com/akumuli/akumulid-edge/internal/model"
)

func registerRoutes(r *gin.Engine, h *handler, apiKey string) {
	apiGroup := r.Group("/api/v1")

	if apiKey != "" {
		apiGroup.Use(middleware.RequireAPIKey(apiKey))
	}

	apiGroup.GET("/health", h.health)
	apiGroup.GET("/stats", h.stats)
	apiGroup.GET("/resource/:name", h.resource)

	apiGroup.POST("/query", h.query(model.EndpointQuery))
	apiGroup.POST("/suggest", h.query(model.EndpointSuggest))
	apiGroup.POST("/search", h.query(model.EndpointSearch))
}
