package routes

import (
	"net/http"

	"ttl-cache-store/internal/auth"
	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/handlers"
	"ttl-cache-store/internal/metrics"
	"ttl-cache-store/internal/middleware"
	"ttl-cache-store/internal/realtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Store   *cache.Store
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
	Tokens  *auth.Tokens
	Admin   auth.Admin
	Logger  *zap.Logger
}

func SetupRoutes(deps Deps) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), requestLogger(deps.Logger))

	// CORS middleware (for browser dashboards)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "TTL cache store is running",
		})
	})

	if deps.Metrics != nil {
		ginRouter.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	cacheHandler := handlers.NewCacheHandler(deps.Store, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Admin, deps.Tokens, deps.Logger)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Logger)

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/login", authHandler.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		protectedRoutes.GET("/cache/*key", cacheHandler.Get)
		protectedRoutes.PUT("/cache/*key", cacheHandler.Put)
		protectedRoutes.DELETE("/cache/*key", cacheHandler.Delete)
		protectedRoutes.DELETE("/cache", cacheHandler.Clear)
		protectedRoutes.POST("/cache/delete_matched", cacheHandler.DeleteMatched)
		protectedRoutes.POST("/cache/cleanup", cacheHandler.Cleanup)
		protectedRoutes.GET("/entries/*key", cacheHandler.Inspect)
		protectedRoutes.GET("/stats", cacheHandler.Stats)
	}

	ginRouter.GET("/ws", middleware.JWTAuthMiddleware(deps.Tokens), wsHandler.Subscribe)

	return ginRouter
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
