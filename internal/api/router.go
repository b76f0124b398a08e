package api

import (
	"orderflow/internal/metrics"
	"orderflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(orderHandler *OrderHandler, taskHandler *TaskHandler, authHandler *AuthHandler, rdb *redis.Client, requestsPerSecond int, env string) *gin.Engine {
	r := gin.New()

	devMode := env != "prod"

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", orderHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth Routes (Public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Auth Routes (Protected)
	authProtected := r.Group("/v1/auth")
	authProtected.Use(middleware.JWTMiddleware(devMode))
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(devMode))

	// Rate Limiter for Write Operations
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	{
		protected.POST("/orders", writeLimiter, orderHandler.CreateOrder)
		protected.GET("/orders", orderHandler.ListOrders)
		protected.GET("/orders/:id", orderHandler.GetOrder)
		protected.POST("/orders/:id/status", writeLimiter, orderHandler.UpdateOrderStatus)
		protected.DELETE("/orders/:id", writeLimiter, orderHandler.DeleteOrder)

		protected.POST("/orders/:id/tasks", writeLimiter, taskHandler.StartAnalysis)
		protected.GET("/orders/:id/tasks", taskHandler.ListOrderTasks)
		protected.GET("/tasks/:id", taskHandler.GetTask)
		protected.POST("/tasks/:id/cancel", writeLimiter, taskHandler.CancelTask)
	}
	return r
}
