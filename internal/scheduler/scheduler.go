// Package scheduler runs the card expiry sweep on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Default schedules, with seconds: shortly after midnight, and a re-check every six hours.
const (
	DefaultSweepSpec   = "0 1 0 * * *"
	DefaultRecheckSpec = "0 5 */6 * * *"
)

const runTimeout = 10 * time.Minute

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper expires cards whose expiry date lies before today
type Sweeper interface {
	SweepExpiredCards(ctx context.Context, today time.Time) int
}

// Status describes the scheduler's last and next runs
type Status struct {
	Running      bool      `json:"running"`
	NextSweep    time.Time `json:"next_sweep"`
	NextRecheck  time.Time `json:"next_recheck"`
	LastRun      time.Time `json:"last_run,omitempty"`
	LastExpired  int       `json:"last_expired"`
	TotalExpired int       `json:"total_expired"`
}

// ExpiryScheduler triggers the expiry sweep on a daily and a frequent schedule
type ExpiryScheduler struct {
	sweeper Sweeper
	log     *logrus.Logger
	cron    *cron.Cron
	sweep   cron.Schedule
	recheck cron.Schedule
	now     func() time.Time

	runMu sync.Mutex // one sweep at a time, scheduled or manual

	mu           sync.Mutex
	running      bool
	lastRun      time.Time
	lastExpired  int
	totalExpired int
}

// NewExpiryScheduler creates a scheduler; empty specs fall back to the defaults
func NewExpiryScheduler(sweeper Sweeper, logger *logrus.Logger, sweepSpec, recheckSpec string) (*ExpiryScheduler, error) {
	if sweepSpec == "" {
		sweepSpec = DefaultSweepSpec
	}
	if recheckSpec == "" {
		recheckSpec = DefaultRecheckSpec
	}

	sweep, err := parser.Parse(sweepSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", sweepSpec, err)
	}
	recheck, err := parser.Parse(recheckSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid re-check schedule %q: %w", recheckSpec, err)
	}

	s := &ExpiryScheduler{
		sweeper: sweeper,
		log:     logger,
		sweep:   sweep,
		recheck: recheck,
		now:     time.Now,
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
	)
	s.cron.Schedule(sweep, cron.FuncJob(func() { s.run("daily sweep") }))
	s.cron.Schedule(recheck, cron.FuncJob(func() { s.run("re-check") }))
	return s, nil
}

// Start begins running the schedules in the background
func (s *ExpiryScheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	st := s.Status()
	s.log.Infof("Expiry scheduler started, next sweep at %s, next re-check at %s",
		st.NextSweep.Format(time.RFC3339), st.NextRecheck.Format(time.RFC3339))
}

// Stop halts the schedules and waits for a running sweep to finish or ctx to end
func (s *ExpiryScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("Expiry scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("Expiry scheduler stop timed out")
	}
}

// RunNow performs a sweep immediately and returns how many cards expired
func (s *ExpiryScheduler) RunNow(ctx context.Context) int {
	return s.runWith(ctx, "manual trigger")
}

func (s *ExpiryScheduler) run(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	s.runWith(ctx, trigger)
}

func (s *ExpiryScheduler) runWith(ctx context.Context, trigger string) int {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.now().UTC()
	expired := s.sweeper.SweepExpiredCards(ctx, started)

	s.mu.Lock()
	s.lastRun = started
	s.lastExpired = expired
	s.totalExpired += expired
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"trigger":  trigger,
		"expired":  expired,
		"duration": time.Since(started).String(),
	}).Info("Expiry check completed")
	return expired
}

// Status reports the last run and the next scheduled runs
func (s *ExpiryScheduler) Status() Status {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		NextSweep:    s.sweep.Next(now),
		NextRecheck:  s.recheck.Next(now),
		LastRun:      s.lastRun,
		LastExpired:  s.lastExpired,
		TotalExpired: s.totalExpired,
	}
}
