package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"trading_signals_backend/controllers"
	"trading_signals_backend/middleware"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, scanController *controllers.ScanController) {
	triggerLimiter := middleware.NewRateLimiter(10, 5*time.Minute)

	// API v1 group
	api := router.Group("/api/v1")
	{
		scan := api.Group("/scan")
		scan.Use(middleware.TriggerRateLimitMiddleware(triggerLimiter))
		{
			// Manual trigger mirroring the scheduler's time windows
			scan.GET("/run", scanController.RunNow)
			scan.POST("/run", scanController.RunNow)
		}

		signals := api.Group("/signals")
		{
			signals.GET("/today", scanController.Today)
		}

		// Admin routes: force a scan regardless of time of day
		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuthMiddleware())
		{
			admin.POST("/scan/:side", scanController.ForceScan)
		}
	}
}
