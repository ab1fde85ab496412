package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"trading_signals_backend/config"
	"trading_signals_backend/controllers"
	"trading_signals_backend/models"
	"trading_signals_backend/routes"
	"trading_signals_backend/scheduler"
	"trading_signals_backend/services/candles"
	"trading_signals_backend/services/engine"
	"trading_signals_backend/services/evaluator"
	"trading_signals_backend/services/marketclock"
	"trading_signals_backend/services/notify"
	"trading_signals_backend/services/scanner"
	"trading_signals_backend/services/store"
	"trading_signals_backend/services/universe"
)

// Initialization state shared between the background init goroutine,
// the /ready endpoint and shutdown. Everything behind one mutex so a
// shutdown signal during startup never races the pointer writes.
var (
	storeInitMutex   sync.RWMutex
	storeInitialized bool
	dayStore         *store.DayStore
	jobScheduler     *scheduler.Scheduler
)

func publishStore(st *store.DayStore) {
	storeInitMutex.Lock()
	dayStore = st
	storeInitMutex.Unlock()
}

func publishScheduler(s *scheduler.Scheduler) {
	storeInitMutex.Lock()
	jobScheduler = s
	storeInitMutex.Unlock()
}

func markInitialized() {
	storeInitMutex.Lock()
	storeInitialized = true
	storeInitMutex.Unlock()
}

func initState() (st *store.DayStore, js *scheduler.Scheduler, ready bool) {
	storeInitMutex.RLock()
	defer storeInitMutex.RUnlock()
	return dayStore, jobScheduler, storeInitialized
}

func main() {
	log.Println("==============================================")
	log.Println("  Signal Scanner Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up; store connects in the background
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately so the platform knows we're listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize store, engine and scheduler in background
	go func() {
		st, err := store.Connect(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			log.Printf("ERROR: MongoDB connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}
		publishStore(st)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := st.EnsureIndexes(ctx); err != nil {
			log.Printf("Warning: Could not ensure indexes: %v", err)
		}
		cancel()

		notifier := notify.NewTelegram(cfg.TelegramData)

		symbols := universe.NewLoader(cfg.SymbolFile, cfg.SymbolFileID, cfg.SymbolFileURL)
		if err := symbols.DownloadIfMissing(); err != nil {
			log.Printf("Warning: symbol master list unavailable: %v", err)
		}

		scanEngine := buildEngine(cfg, st, symbols, notifier)

		markInitialized()

		// Setup all API routes
		scanController := controllers.NewScanController(scanEngine, st, cfg)
		routes.SetupRoutes(router, scanController)

		// Start trigger scheduler
		if cfg.SchedulerEnabled {
			js, err := scheduler.NewScheduler(cfg, func(side models.Side) {
				runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
				defer cancel()
				if _, err := scanEngine.Run(runCtx, side, ""); err != nil {
					log.Printf("Scheduled %s scan failed: %v", side, err)
				}
			})
			if err != nil {
				log.Printf("ERROR: scheduler setup failed: %v", err)
			} else {
				publishScheduler(js)
				js.Start()
			}
		}

		log.Println("Application fully initialized")
	}()

	// Graceful shutdown
	gracefulShutdown(server)
}

// buildEngine wires the scanning pipeline from configuration
func buildEngine(cfg *config.Config, st *store.DayStore, symbols *universe.Loader, notifier notify.Notifier) *engine.Engine {
	client := candles.NewClient(cfg.CandleBaseURL, cfg.Exchange, cfg.Segment,
		cfg.IntervalMinutes, cfg.MaxRetries, cfg.FetchTimeout)

	cutoffHour, cutoffMin, err := marketclock.ParseClock(cfg.SellCutoff)
	if err != nil {
		log.Printf("Warning: invalid sell cutoff %q, using 10:00", cfg.SellCutoff)
		cutoffHour, cutoffMin = 10, 0
	}

	eval := evaluator.New(evaluator.Params{
		Capital:        cfg.Capital,
		BreakoutPct:    cfg.BreakoutPct,
		TargetPct:      cfg.TargetPct,
		StoplossPct:    cfg.StoplossPct,
		MinVolume:      cfg.MinVolume,
		SellCutoffHour: cutoffHour,
		SellCutoffMin:  cutoffMin,
		Location:       config.Market,
	})

	sc := scanner.New(client, eval, cfg.MaxWorkers, cfg.FallbackRounds, cfg.FallbackPause)

	return engine.New(cfg, symbols, sc, st, notifier)
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Signal Scanner Backend",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if the signal store is reachable
	router.GET("/ready", func(c *gin.Context) {
		st, _, isStoreReady := initState()

		if !isStoreReady || st == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Signal store not connected",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Signal store ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	st, js, _ := initState()

	// Stop scheduler first
	if js != nil {
		js.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if st != nil {
		if err := st.Close(); err == nil {
			log.Println("Signal store connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
