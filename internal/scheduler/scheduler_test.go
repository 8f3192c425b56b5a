package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	n     int
}

func (f *fakeSweeper) SweepExpiredCards(_ context.Context, today time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, today)
	return f.n
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewExpirySchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewExpiryScheduler(&fakeSweeper{}, quietLogger(), "not a cron", ""); err == nil {
		t.Error("expected error for invalid sweep spec")
	}
	if _, err := NewExpiryScheduler(&fakeSweeper{}, quietLogger(), "", "61 * * * * *"); err == nil {
		t.Error("expected error for invalid re-check spec")
	}
}

func TestStatusNextRuns(t *testing.T) {
	s, err := NewExpiryScheduler(&fakeSweeper{}, quietLogger(), "", "")
	if err != nil {
		t.Fatalf("NewExpiryScheduler: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC) }

	st := s.Status()
	if want := time.Date(2024, time.June, 2, 0, 1, 0, 0, time.UTC); !st.NextSweep.Equal(want) {
		t.Errorf("NextSweep = %s, want %s", st.NextSweep, want)
	}
	if want := time.Date(2024, time.June, 1, 12, 5, 0, 0, time.UTC); !st.NextRecheck.Equal(want) {
		t.Errorf("NextRecheck = %s, want %s", st.NextRecheck, want)
	}
	if st.Running {
		t.Error("scheduler should not be running before Start")
	}
}

func TestRunNow(t *testing.T) {
	sweeper := &fakeSweeper{n: 2}
	s, err := NewExpiryScheduler(sweeper, quietLogger(), "", "")
	if err != nil {
		t.Fatalf("NewExpiryScheduler: %v", err)
	}
	fixed := time.Date(2024, time.June, 1, 0, 1, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if n := s.RunNow(context.Background()); n != 2 {
		t.Errorf("RunNow = %d, want 2", n)
	}
	s.RunNow(context.Background())

	st := s.Status()
	if !st.LastRun.Equal(fixed) || st.LastExpired != 2 || st.TotalExpired != 4 {
		t.Errorf("unexpected status %+v", st)
	}
	if !sweeper.calls[0].Equal(fixed) {
		t.Errorf("sweep called with %s, want %s", sweeper.calls[0], fixed)
	}
}

func TestScheduledRun(t *testing.T) {
	sweeper := &fakeSweeper{}
	s, err := NewExpiryScheduler(sweeper, quietLogger(), "* * * * * *", "0 0 0 1 1 *")
	if err != nil {
		t.Fatalf("NewExpiryScheduler: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for sweeper.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if sweeper.count() == 0 {
		t.Fatal("expected the every-second schedule to trigger a sweep")
	}
	if !s.Status().Running {
		t.Error("expected Running after Start")
	}
}
