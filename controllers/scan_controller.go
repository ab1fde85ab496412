package controllers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trading_signals_backend/config"
	"trading_signals_backend/models"
	"trading_signals_backend/scheduler"
	"trading_signals_backend/services/engine"
	"trading_signals_backend/services/marketclock"
)

// ScanRunner is the engine entry the HTTP surface drives
type ScanRunner interface {
	Run(ctx context.Context, side models.Side, phaseHint models.Phase) (*engine.RunReport, error)
}

// DayFinder exposes today's persisted record for the status route
type DayFinder interface {
	FindDay(ctx context.Context, tradeDate string) (*models.DayRecord, error)
}

// ScanController handles scan trigger and status routes
type ScanController struct {
	runner ScanRunner
	store  DayFinder
	jobs   []scheduler.TriggerJob
}

// NewScanController creates a new scan controller. The manual trigger
// shares the scheduler's job windows so the two surfaces cannot drift.
func NewScanController(runner ScanRunner, store DayFinder, cfg *config.Config) *ScanController {
	jobs, err := scheduler.DefaultJobs(cfg)
	if err != nil {
		log.Printf("Warning: manual trigger windows unavailable: %v", err)
	}
	return &ScanController{runner: runner, store: store, jobs: jobs}
}

// RunNow is the manual trigger: it replays the scheduler's time-window
// logic, so hitting it outside a window is a no-op
func (sc *ScanController) RunNow(c *gin.Context) {
	now := time.Now().In(config.Market)
	resp := gin.H{
		"current_time_ist": now.Format("15:04:05"),
		"action":           "none",
	}

	side, ok := sc.windowSide(now)
	if !ok {
		c.JSON(http.StatusOK, resp)
		return
	}

	report, err := sc.runner.Run(c.Request.Context(), side, "")
	if err != nil {
		resp["action"] = string(side)
		resp["error"] = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp["action"] = string(side)
	resp["report"] = report
	c.JSON(http.StatusOK, resp)
}

// windowSide maps the current minute to a scan side: buy shortly after
// session open, sell shortly after the breakdown cutoff
func (sc *ScanController) windowSide(now time.Time) (models.Side, bool) {
	for _, job := range sc.jobs {
		if job.InWindow(now) {
			return job.Side, true
		}
	}
	return "", false
}

// ForceScan runs a scan for the given side immediately, regardless of
// time of day. Admin-only; an optional phase query overrides the
// run-mode resolver.
func (sc *ScanController) ForceScan(c *gin.Context) {
	var side models.Side
	switch strings.ToLower(c.Param("side")) {
	case "buy":
		side = models.SideBuy
	case "sell":
		side = models.SideSell
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "side must be 'buy' or 'sell'",
		})
		return
	}

	var phase models.Phase
	switch strings.ToUpper(c.Query("phase")) {
	case "":
	case "MORNING":
		phase = models.PhaseMorning
	case "AFTERNOON":
		phase = models.PhaseAfternoon
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "phase must be MORNING or AFTERNOON",
		})
		return
	}

	report, err := sc.runner.Run(c.Request.Context(), side, phase)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scan_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Today returns the persisted day record for the current trading date
func (sc *ScanController) Today(c *gin.Context) {
	tradeDate := marketclock.TradeDate(time.Now(), config.Market)

	rec, err := sc.store.FindDay(c.Request.Context(), tradeDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": err.Error(),
		})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no signals recorded for " + tradeDate,
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}
