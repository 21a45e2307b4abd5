package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"syncway/internal/handler"
	"syncway/internal/logger"
	"syncway/internal/metrics"
	"syncway/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	UserHandler   *handler.UserHandler
	SocketHandler *handler.SocketHandler
	HealthHandler *handler.HealthHandler
	RedisClient   *redis.Client
	NewRelicApp   *newrelic.Application
	Logger        logrus.FieldLogger
	// AllowedOrigins is passed to CORSMiddleware.
	AllowedOrigins []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware. nrgin runs before the request logger so log lines
	// carry the trace id.
	router.Use(gin.Recovery())
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	router.Use(logger.GinMiddleware(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))
	router.Use(metrics.Middleware())
	router.Use(middleware.NoticeErrors())

	router.GET("/health", deps.HealthHandler.Health)
	router.GET("/metrics", metrics.Handler())
	router.GET("/ws", deps.SocketHandler.Serve)

	v1 := router.Group("/v1")
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		// User routes.
		users := v1.Group("/users")
		{
			users.POST("/register", deps.UserHandler.Register)
			users.GET("", deps.UserHandler.GetAll)
			users.GET("/:id", deps.UserHandler.GetUser)
			users.PUT("/:id/notifications", deps.UserHandler.SetNotifications)
			users.DELETE("/:id", deps.UserHandler.Deactivate)
		}

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/available", deps.RideHandler.ListAvailable)
			rides.GET("/requester/:userId", deps.RideHandler.ListByRequester)
			rides.GET("/driver/:driverId", deps.RideHandler.ListByDriver)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.PUT("/:id/claim", deps.RideHandler.ClaimRide)
			rides.PUT("/:id/unclaim", deps.RideHandler.UnclaimRide)
			rides.PUT("/:id/cancel", deps.RideHandler.CancelRide)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.ErrorResponse{Error: "route not found"})
	})

	return router
}
