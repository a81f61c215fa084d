package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/api/handlers"
	"github.com/yourusername/media-dl-go/api/middleware"
	"github.com/yourusername/media-dl-go/internal/app"
	"github.com/yourusername/media-dl-go/internal/domain"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	orchestrator *app.Orchestrator,
	registry *app.ArtifactRegistry,
	reaper handlers.ReaperStatus,
	config *domain.ServerConfig,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(config.AllowedOrigins))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(reaper)
	router.GET("/health", healthHandler.Health)
	router.GET("/healthz", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	downloadHandler := handlers.NewDownloadHandler(orchestrator, registry, config.ResponseMode, log)
	download := router.Group("/api/download")
	{
		download.GET("/artifact/:token", downloadHandler.Artifact)
		download.POST("/:platform", downloadHandler.Download)
	}

	// Preflight requests are answered by the CORS middleware
	router.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
