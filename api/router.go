package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/url-relay-go/api/handlers"
	"github.com/yourusername/url-relay-go/api/middleware"
	"github.com/yourusername/url-relay-go/internal/app"
)

// RouterOptions configures SetupRouter
type RouterOptions struct {
	// BaseContext bounds acquisitions started over HTTP
	BaseContext context.Context
	Relay       *app.RelayService
	Updaters    handlers.UpdaterFactory
	// LogsDir enables the category log endpoints when set
	LogsDir string
	Version string
	Logger  *zap.Logger
}

// SetupRouter sets up the HTTP router
func SetupRouter(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(opts.Logger))
	router.Use(middleware.Recovery(opts.Logger))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(opts.Relay, opts.Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		acquisitionHandler := handlers.NewAcquisitionHandler(opts.BaseContext, opts.Relay, opts.Updaters, opts.Logger)

		acquisitions := v1.Group("/acquisitions")
		{
			acquisitions.POST("", acquisitionHandler.StartAcquisition)
			acquisitions.GET("", acquisitionHandler.ListActive)
			acquisitions.GET("/:id", acquisitionHandler.GetAcquisition)
		}

		users := v1.Group("/users/:user_id")
		{
			users.GET("/active", acquisitionHandler.GetActive)
			users.POST("/cancel", acquisitionHandler.Cancel)
			users.GET("/history", acquisitionHandler.History)
		}

		v1.GET("/stats", acquisitionHandler.GetStats)
		v1.POST("/classify", acquisitionHandler.Classify)

		if opts.LogsDir != "" {
			logHandler := handlers.NewLogHandler(opts.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
