package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/handler"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/middleware"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// Deps 路由依赖
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Verifier *auth.Verifier
	Users    repository.UserStore

	Sessions *handler.SessionHandler
	Accounts *handler.UserHandler
	Reports  *handler.ReportHandler
	Live     http.Handler

	// nil disables the limiter
	IPLimiter   *middleware.RateLimiter
	UserLimiter *middleware.RateLimiter
}

// SetupRouter 设置路由
func SetupRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	r := gin.New()
	r.Use(middleware.Recovery(d.Logger), middleware.Logger(d.Logger, d.Metrics))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "DriveSense backend is running",
		})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api")
	if d.IPLimiter != nil {
		api.Use(middleware.RateLimit(d.IPLimiter))
	}
	api.Use(middleware.Auth(d.Verifier, d.Users))
	if d.UserLimiter != nil {
		api.Use(middleware.UserRateLimit(d.UserLimiter))
	}
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", d.Sessions.Start)
			sessions.GET("", d.Sessions.List)
			sessions.PATCH("/stop", d.Sessions.Stop)
			sessions.POST("/behaviors", d.Sessions.AddBehavior)
			sessions.GET("/:id/behaviors", d.Sessions.Behaviors)
			sessions.GET("/:id/aggregate", d.Sessions.Aggregate)
		}

		users := api.Group("/users")
		{
			users.GET("", d.Accounts.List)
			users.GET("/me", d.Accounts.Me)
			users.GET("/:id/sessions", d.Accounts.Sessions)
		}

		api.POST("/report/update_maintenance", d.Reports.UpdateMaintenance)

		// 实时行为识别 (websocket)
		api.GET("/behavior/", gin.WrapH(d.Live))
	}

	return r
}
