package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reward-ledger/internal/auth"
	"reward-ledger/internal/services"
)

// RouterDeps are the services the HTTP layer delegates to
type RouterDeps struct {
	Rewards        *services.RewardService
	Accounts       *services.AccountService
	Admin          *services.AdminService
	Settlement     *services.SettlementService
	Jobs           JobRunner
	Diagnoser      Diagnoser
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Clock          services.Clock
}

// SetupRouter builds the gin engine with every route
func SetupRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(d.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     d.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	authHandler := NewAuthHandler()
	userHandler := NewUserHandler(d.Accounts, d.Rewards)
	rewardHandler := NewRewardHandler(d.Rewards, d.Admin, d.Clock)
	adminHandler := NewAdminHandler(d.Admin, d.Settlement, d.Jobs, d.Diagnoser)

	router.GET("/health", func(c *gin.Context) {
		now := time.Now().UTC().Format(time.RFC3339)
		paused, err := d.Rewards.IsPaused(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database unavailable",
				"time":   now,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"paused": paused,
			"time":   now,
		})
	})
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/auth/wallet", authHandler.WalletLogin)
	router.GET("/api/rewards/schedule", rewardHandler.GetSchedule)

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.GET("/me", authHandler.GetMe)

		user := api.Group("/user")
		{
			user.PUT("/wallet", userHandler.RegisterWallet)
			user.GET("/balance", userHandler.GetBalance)
			user.GET("/locks", userHandler.GetLocks)
			user.GET("/rewards", userHandler.GetRewards)
			user.GET("/transfers", userHandler.GetTransfers)
		}

		api.POST("/rewards/checkin", rewardHandler.DailyCheckin)

		admin := api.Group("/admin")
		admin.Use(auth.AdminMiddleware(d.Admin))
		{
			admin.POST("/rewards", rewardHandler.ApplyReward)
			admin.GET("/stats", adminHandler.GetStats)
			admin.POST("/pause", adminHandler.SetPaused)
			admin.GET("/users/:user_id/locks", adminHandler.GetUserLocks)
			admin.POST("/users/:user_id/locks/:lock_id/unlock", adminHandler.ForceUnlock)
			admin.GET("/transfers/stats", adminHandler.GetQueueStats)
			admin.POST("/transfers/retry", adminHandler.RetryFailedTransfers)
			admin.GET("/jobs", adminHandler.ListJobs)
			admin.POST("/jobs/:name/run", adminHandler.RunJob)
			admin.POST("/roles", adminHandler.GrantRole)
			admin.GET("/actions", adminHandler.GetActions)
			admin.GET("/diagnostics", adminHandler.GetDiagnostics)
		}
	}

	return router
}
