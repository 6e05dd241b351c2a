package routes

import (
	"net/http"

	"mom-admin-api/internal/auth"
	"mom-admin-api/internal/config"
	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/gate"
	"mom-admin-api/internal/handlers"
	"mom-admin-api/internal/metrics"
	"mom-admin-api/internal/middleware"
	"mom-admin-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps is everything the router needs. Metrics may be nil.
type Deps struct {
	Config    *config.Config
	Gate      *gate.Gate
	Users     handlers.Authenticator
	Tokens    *auth.Manager
	Documents *docstore.Cached
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

func SetupRoutes(d Deps) (*gin.Engine, error) {
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), requestLogger(d.Logger))
	if d.Metrics != nil {
		ginRouter.Use(d.Metrics.Middleware())
	}
	ginRouter.Use(middleware.SecureHeaders(middleware.SecureOptions(d.Config.Server.IsDevelopment())))

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "MOM admin API is running",
			"gateReady": d.Gate.IsReady(),
			"store":     d.Config.Store.Backend,
		})
	})
	if d.Metrics != nil {
		ginRouter.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	authHandler := handlers.NewAuthHandler(d.Gate, d.Users, d.Tokens, d.Metrics, d.Logger)
	documentHandler := handlers.NewDocumentHandler(d.Documents, d.Logger, d.Config.Credentials.Path)
	cacheHandler := handlers.NewCacheHandler(d.Documents.Cache())
	socketHandler := handlers.NewSocketHandler(d.Documents, d.Logger)

	loginLimit, err := middleware.RateLimit(d.Config.Server.LoginRateSpec)
	if err != nil {
		return nil, err
	}

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/login", loginLimit, authHandler.Login)
		api.GET("/login/status", authHandler.Status)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(d.Tokens))
	{
		protectedRoutes.GET("/session", authHandler.Session)
		protectedRoutes.GET("/documents/*path", documentHandler.GetDocument)
		protectedRoutes.GET("/ws", socketHandler.WatchDocument)
		protectedRoutes.GET("/cache/stats", middleware.RequireLevel(models.LevelOperator), cacheHandler.GetStats)
	}

	superAdmin := protectedRoutes.Group("")
	superAdmin.Use(middleware.RequireLevel(models.LevelSuperAdmin))
	{
		superAdmin.POST("/admin/lockout/reset", authHandler.ResetLockout)
		superAdmin.PUT("/documents/*path", documentHandler.PutDocument)
		superAdmin.DELETE("/cache", cacheHandler.ClearCache)
	}

	return ginRouter, nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		c.Next()
		evt := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}
