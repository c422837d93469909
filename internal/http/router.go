package http

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/cyclone-tracker/internal/observability"
	"go.ngs.io/cyclone-tracker/internal/usecase"
)

// SetupRouter creates and configures the Gin router. allowedOrigins is a
// comma-separated list; empty allows all origins.
func SetupRouter(trackUC *usecase.TrackUseCase, metrics *observability.Metrics, allowedOrigins string) *gin.Engine {
	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(trackUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	tracks := v1.Group("/tracks")
	tracks.GET("", handler.ListTracks)
	tracks.POST("", handler.CreateTrack)
	tracks.GET("/:run", handler.GetTrack)
	tracks.GET("/:run/plot", handler.GetTrackPlot)

	// Intensity scale.
	v1.GET("/categories", handler.GetCategories)

	// Health check and metrics.
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
