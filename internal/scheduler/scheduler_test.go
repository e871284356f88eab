package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/suzieq/ceo-office/internal/config"
)

func newTestScheduler(t *testing.T, mutate func(*config.SchedulerConfig)) *Scheduler {
	t.Helper()
	cfg := config.SchedulerConfig{
		TickInterval:   50 * time.Millisecond,
		LockPath:       t.TempDir() + "/locks/scheduler.lock",
		MaxConcLLM:     1,
		MaxConcDefault: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"* * * * *", "*/30 * * * *", "0 9 * * 1-5", "@daily"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "* * *", "61 * * * *", "@every 1h", "abc * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) should fail", expr)
		}
	}
}

func TestDue(t *testing.T) {
	tests := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"*/30 * * * *", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), true},
		{"*/30 * * * *", time.Date(2026, 3, 2, 10, 30, 45, 0, time.UTC), true},
		{"*/30 * * * *", time.Date(2026, 3, 2, 10, 31, 0, 0, time.UTC), false},
		{"0 9 * * *", time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC), true},
		{"0 9 * * *", time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), false},
		{"0 9 * * 1-5", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), false}, // Sunday
	}
	for _, tt := range tests {
		sched, err := ParseSchedule(tt.expr)
		if err != nil {
			t.Fatal(err)
		}
		if got := Due(sched, tt.at); got != tt.want {
			t.Errorf("Due(%q, %s) = %v, want %v", tt.expr, tt.at, got, tt.want)
		}
	}
}

func TestTickRunsDueJobsOncePerMinute(t *testing.T) {
	s := newTestScheduler(t, nil)
	var runs atomic.Int32
	if err := s.Add(JobAutonomyTick, "* * * * *", CategoryDefault, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(JobDailyReport, "0 0 * * *", CategoryDefault, func(ctx context.Context) error {
		t.Error("midnight job should not run at noon")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	noon := time.Date(2026, 2, 15, 12, 30, 5, 0, time.UTC)
	s.tick(context.Background(), noon)
	s.tick(context.Background(), noon.Add(20*time.Second))
	s.Wait()
	if runs.Load() != 1 {
		t.Fatalf("expected 1 run in the same minute, got %d", runs.Load())
	}

	s.tick(context.Background(), noon.Add(time.Minute))
	s.Wait()
	if runs.Load() != 2 {
		t.Fatalf("expected a second run in the next minute, got %d", runs.Load())
	}
}

func TestFailingAndPanickingJobsDoNotStopScheduler(t *testing.T) {
	s := newTestScheduler(t, nil)
	var ok atomic.Int32
	_ = s.Add("fails", "* * * * *", CategoryDefault, func(ctx context.Context) error { return errors.New("boom") })
	_ = s.Add("panics", "* * * * *", CategoryLLM, func(ctx context.Context) error { panic("boom") })
	_ = s.Add("works", "* * * * *", CategoryDefault, func(ctx context.Context) error {
		ok.Add(1)
		return nil
	})

	s.tick(context.Background(), time.Now())
	s.Wait()
	if ok.Load() != 1 {
		t.Fatalf("expected healthy job to run, got %d", ok.Load())
	}
}

func TestCategoryCapSkipsJob(t *testing.T) {
	s := newTestScheduler(t, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	block := func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
	_ = s.Add("llm-a", "* * * * *", CategoryLLM, block)
	_ = s.Add("llm-b", "* * * * *", CategoryLLM, block)

	s.tick(context.Background(), time.Now())
	<-started
	select {
	case <-started:
		t.Error("second LLM job should be skipped at cap 1")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	s.Wait()
}

func TestLockPreventsOverlap(t *testing.T) {
	path := t.TempDir() + "/overlap.lock"
	held := NewFileLock(path)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("first lock should succeed: %v", err)
	}

	s := newTestScheduler(t, func(c *config.SchedulerConfig) { c.LockPath = path })
	var runs atomic.Int32
	_ = s.Add("job", "* * * * *", CategoryDefault, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.tick(context.Background(), time.Now())
	s.Wait()
	if runs.Load() != 0 {
		t.Fatal("job should not run while another holder has the lock")
	}

	if err := held.Unlock(); err != nil {
		t.Fatal(err)
	}
	s.tick(context.Background(), time.Now())
	s.Wait()
	if runs.Load() != 1 {
		t.Fatalf("expected job to run after release, got %d", runs.Load())
	}
}

func TestEmptySpecDisablesJob(t *testing.T) {
	s := newTestScheduler(t, nil)
	if err := s.Add(JobDailyReport, "", CategoryLLM, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if len(s.Jobs()) != 0 {
		t.Fatal("empty spec should not register a job")
	}
	if err := s.Add("bad", "nope", CategoryDefault, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSchedulersSharingLockDoNotOverlap(t *testing.T) {
	path := t.TempDir() + "/shared.lock"
	first := newTestScheduler(t, func(c *config.SchedulerConfig) { c.LockPath = path })
	second := newTestScheduler(t, func(c *config.SchedulerConfig) { c.LockPath = path })

	var running, maxRunning, runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	job := func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}
	_ = first.Add(JobAutonomyTick, "* * * * *", CategoryDefault, job)
	_ = second.Add(JobAutonomyTick, "* * * * *", CategoryDefault, job)

	noon := time.Date(2026, 2, 15, 12, 30, 5, 0, time.UTC)
	first.tick(context.Background(), noon)
	<-started

	// Same minute: the other process sees the recorded run.
	second.tick(context.Background(), noon.Add(time.Second))
	// Next minute: the first run is still active.
	second.tick(context.Background(), noon.Add(time.Minute))
	select {
	case <-started:
		t.Fatal("second scheduler overlapped a running job")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	first.Wait()
	second.tick(context.Background(), noon.Add(2*time.Minute))
	second.Wait()

	if runs.Load() != 2 {
		t.Fatalf("expected 2 runs, got %d", runs.Load())
	}
	if maxRunning.Load() != 1 {
		t.Fatalf("expected no concurrent runs, saw %d", maxRunning.Load())
	}
}
