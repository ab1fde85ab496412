package scheduler

import (
	"fmt"
	"sync"
	"time"

	"trading_signals_backend/config"
	"trading_signals_backend/models"
	"trading_signals_backend/services/marketclock"
)

// TriggerJob is one configured time-of-day dispatch. The window gives
// the minute tick a few minutes of slack so a late or restarted process
// still fires the job once.
type TriggerJob struct {
	Name          string
	Side          models.Side
	Hour          int
	Minute        int
	WindowMinutes int
}

// InWindow reports whether local falls inside the job's firing window
func (j TriggerJob) InWindow(local time.Time) bool {
	minute := local.Hour()*60 + local.Minute()
	start := j.Hour*60 + j.Minute
	return minute >= start && minute <= start+j.WindowMinutes
}

// DefaultJobs builds the trigger set: buy breakout at session open,
// sell breakdown at the cutoff
func DefaultJobs(cfg *config.Config) ([]TriggerJob, error) {
	buyH, buyM, err := marketclock.ParseClock(cfg.SessionStart)
	if err != nil {
		return nil, fmt.Errorf("invalid session start: %w", err)
	}
	sellH, sellM, err := marketclock.ParseClock(cfg.SellCutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid sell cutoff: %w", err)
	}
	return []TriggerJob{
		{Name: "buy_breakout", Side: models.SideBuy, Hour: buyH, Minute: buyM, WindowMinutes: 5},
		{Name: "sell_breakdown", Side: models.SideSell, Hour: sellH, Minute: sellM, WindowMinutes: 2},
	}, nil
}

// TickState tracks which jobs already fired today. It resets itself when
// the local date rolls over, so every trading day starts clean.
type TickState struct {
	mu    sync.Mutex
	day   string
	fired map[string]bool
}

func NewTickState() *TickState {
	return &TickState{fired: make(map[string]bool)}
}

// MarkFired records a dispatch for the job and reports whether it is the
// first one today. Safe under concurrent ticks.
func (s *TickState) MarkFired(local time.Time, job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := marketclock.TradeDate(local, local.Location())
	if s.day != day {
		s.day = day
		s.fired = make(map[string]bool)
	}
	if s.fired[job] {
		return false
	}
	s.fired[job] = true
	return true
}
