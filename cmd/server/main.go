package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/handlers"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/repositories"
	"github.com/gitpulse/gitpulse/internal/services"
	"github.com/gitpulse/gitpulse/pkg/config"
	"github.com/gitpulse/gitpulse/pkg/database"
	"github.com/gitpulse/gitpulse/pkg/logger"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(config.AppConfig.Server.Mode)

	// Initialize the session store database
	if err := database.Init(config.AppConfig.Sessions.DSN); err != nil {
		logger.Fatalf("Failed to initialize session store: %v", err)
	}
	defer database.Close()

	// Initialize dependencies
	sessionRepo := repositories.NewSessionRepository(database.DB)
	githubService := services.NewGitHubService()
	fetchService := services.NewGitHubFetchService()
	analyticsService := services.NewAnalyticsService(fetchService)
	exportService := services.NewExportService()
	authSessions := services.NewAuthSessionService(sessionRepo, githubService)

	// Initialize router
	router := gin.Default()

	// Apply middleware
	router.Use(middleware.SessionMiddleware(sessionRepo))

	// Setup routes
	setupRoutes(router, githubService, authSessions, analyticsService, exportService)

	// Setup server
	server := &http.Server{
		Addr:         ":" + config.AppConfig.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(config.AppConfig.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(config.AppConfig.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Infof("Server starting on :%s", config.AppConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	logger.Info("Server stopped")
}

func setupRoutes(
	router *gin.Engine,
	githubService *services.GitHubService,
	authSessions *services.AuthSessionService,
	analyticsService *services.AnalyticsService,
	exportService *services.ExportService,
) {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(githubService, authSessions)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, exportService)
	healthHandler := handlers.NewHealthHandler()

	// Auth routes
	auth := router.Group("/api/auth")
	{
		auth.GET("/github/login", authHandler.Login)
		auth.POST("/github/exchange", authHandler.Exchange)
		auth.POST("/github/logout", authHandler.Logout)
		auth.GET("/session", authHandler.SessionInfo)
	}

	// Analytics routes
	api := router.Group("/api")
	{
		api.GET("/analytics", analyticsHandler.Analyze)
		api.GET("/analytics/export", analyticsHandler.Export)
	}

	// Health check endpoint
	router.GET("/healthz", healthHandler.HealthCheck)
}
