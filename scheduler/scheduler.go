// Package scheduler fires the scanning engine at configured times of
// day. It polls the clock once a minute and dispatches each job at most
// once per (time, job) pair per trading day; the dedup state is an
// explicit object reset at local midnight, never package-level globals.
package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"trading_signals_backend/config"
	"trading_signals_backend/models"
)

// DispatchFunc hands a side off to the scanning engine. Implementations
// are expected to return quickly; the engine run happens elsewhere.
type DispatchFunc func(side models.Side)

// Scheduler manages the minute tick that triggers scan runs
type Scheduler struct {
	cron     *gocron.Scheduler
	jobs     []TriggerJob
	state    *TickState
	dispatch DispatchFunc
}

// NewScheduler creates a scheduler with the default trigger jobs: a buy
// scan at session open and a sell scan at the breakdown cutoff.
func NewScheduler(cfg *config.Config, dispatch DispatchFunc) (*Scheduler, error) {
	jobs, err := DefaultJobs(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(config.Market),
		jobs:     jobs,
		state:    NewTickState(),
		dispatch: dispatch,
	}, nil
}

// Start begins the minute tick
func (s *Scheduler) Start() {
	log.Println("Starting trigger scheduler...")

	s.cron.Every(1).Minute().Do(func() {
		s.Tick(time.Now())
	})

	s.cron.StartAsync()
	log.Printf("Trigger scheduler started with %d jobs", len(s.jobs))
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Trigger scheduler stopped")
}

// Tick evaluates every trigger job against the current minute and
// dispatches the ones whose window is open and not yet fired today
func (s *Scheduler) Tick(now time.Time) {
	local := now.In(config.Market)

	for _, job := range s.jobs {
		if !job.InWindow(local) {
			continue
		}
		if !s.state.MarkFired(local, job.Name) {
			continue
		}
		log.Printf("Trigger %s fired at %s", job.Name, local.Format("15:04"))
		go s.dispatch(job.Side)
	}
}
