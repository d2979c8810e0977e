package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rebalance-service/rebalance_service/docs"
	"github.com/rebalance-service/rebalance_service/internal/api/middleware"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/di"
	"github.com/rebalance-service/rebalance_service/pkg/idempotency"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	if container.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Global middleware - order matters
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	h := container.Handlers
	replay := idempotency.Middleware(container.Idempotency, middleware.WalletContextKey, container.ZapLogger)
	var shared gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if container.RateLimiter != nil {
		shared = middleware.SharedRateLimit(container.RateLimiter, container.Logger)
	}

	router.GET("/health", h.Health.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Swagger documentation (development only)
	if container.Config.Environment != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := router.Group("/api/v1")
	{
		signals := v1.Group("/signals")
		{
			signals.POST("", shared, replay, h.Signals.ReceiveSignal)
			signals.GET("", h.Signals.ListSignals)
			signals.GET("/:id", h.Signals.GetSignal)
		}

		owner := v1.Group("/")
		owner.Use(middleware.WalletAuth(), shared, replay)
		{
			owner.GET("/vault", h.Vault.GetBalances)
			owner.POST("/vault/deposit", h.Vault.Deposit)
			owner.POST("/vault/withdraw", h.Vault.Withdraw)

			owner.GET("/settings", h.Settings.GetSettings)
			owner.PUT("/settings", h.Settings.UpdateSettings)
			owner.POST("/settings/reset", h.Settings.ResetSettings)

			owner.GET("/strategy/status", h.Strategy.GetStatus)

			owner.GET("/transactions", h.Transactions.ListTransactions)
		}
	}

	return router
}
