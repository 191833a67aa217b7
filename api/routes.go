package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, log logger.Logger, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(s, repos, log)

	// health and status need no API key; status feeds dashboards
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.QuotaRegistry))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILSYNC-API-KEY",
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", apiHandlers.Accounts.Connect())
			accounts.GET("/:id", apiHandlers.Accounts.Get())
			accounts.DELETE("/:id", apiHandlers.Accounts.Disconnect())
			accounts.GET("/:id/messages", apiHandlers.Accounts.Messages())
			accounts.POST("/:id/sync", apiHandlers.Syncs.TriggerAccountSync())
		}

		users := api.Group("/users")
		{
			users.GET("/:userId/accounts", apiHandlers.Accounts.ListForUser())
			users.GET("/:userId/health", apiHandlers.Accounts.Health())
			users.POST("/:userId/sync", apiHandlers.Syncs.TriggerUserSync())
		}

		syncruns := api.Group("/syncruns")
		{
			syncruns.GET("/:id", apiHandlers.Syncs.GetRun())
		}
	}
}
