package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/suzieq/ceo-office/internal/config"
)

// JobCategory selects the concurrency cap a job runs under.
type JobCategory string

const (
	CategoryLLM     JobCategory = "llm"
	CategoryDefault JobCategory = "default"
)

// Job names.
const (
	JobAutonomyTick = "autonomy-tick"
	JobDailyReport  = "daily-report"
)

const jobTimeout = 15 * time.Minute

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Spec     string
	Schedule cron.Schedule
	Category JobCategory
	Run      func(ctx context.Context) error
}

// semaphore caps concurrent jobs in one category.
type semaphore chan struct{}

func (s semaphore) tryAcquire() bool {
	select {
	case s <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s semaphore) release() { <-s }

// Scheduler dispatches due jobs once per tick.
type Scheduler struct {
	cfg        config.SchedulerConfig
	mu         sync.RWMutex
	jobs       map[string]*Job
	lastRun    map[string]time.Time
	semaphores map[JobCategory]semaphore
	lock       *FileLock
	wg         sync.WaitGroup
}

// New creates a scheduler.
func New(cfg config.SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.MaxConcLLM <= 0 {
		cfg.MaxConcLLM = 2
	}
	if cfg.MaxConcDefault <= 0 {
		cfg.MaxConcDefault = 4
	}
	return &Scheduler{
		cfg:     cfg,
		jobs:    make(map[string]*Job),
		lastRun: make(map[string]time.Time),
		semaphores: map[JobCategory]semaphore{
			CategoryLLM:     make(semaphore, cfg.MaxConcLLM),
			CategoryDefault: make(semaphore, cfg.MaxConcDefault),
		},
		lock: NewFileLock(cfg.LockPath),
	}
}

// Add registers a job. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, category JobCategory, run func(ctx context.Context) error) error {
	if spec == "" {
		slog.Info("Scheduler job disabled", "name", name)
		return nil
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &Job{Name: name, Spec: spec, Schedule: sched, Category: category, Run: run}
	slog.Info("Scheduler job registered", "name", name, "schedule", spec, "category", category)
	return nil
}

// Jobs returns a snapshot of the registered jobs ordered by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Run ticks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "tick", s.cfg.TickInterval, "jobs", len(s.Jobs()))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("Scheduler stopped")
			return nil
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick dispatches due jobs while holding the file lock. A job runs at most
// once per minute even when the tick interval is shorter. The last-run
// minutes are shared with other processes through a state file next to the
// lock, and each running job holds its own lock file so a slow run is not
// overlapped by another process.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("Scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("Scheduler tick skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	minute := now.Truncate(time.Minute)
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.loadState()
	for name, at := range state {
		if at.After(s.lastRun[name]) {
			s.lastRun[name] = at
		}
	}
	changed := false
	for _, job := range s.jobs {
		if !Due(job.Schedule, now) || !s.lastRun[job.Name].Before(minute) {
			continue
		}
		if s.dispatch(ctx, job) {
			s.lastRun[job.Name] = minute
			state[job.Name] = minute
			changed = true
		}
	}
	if changed {
		if err := s.saveState(state); err != nil {
			slog.Warn("Scheduler state write failed", "error", err)
		}
	}
}

func (s *Scheduler) statePath() string { return s.cfg.LockPath + ".state" }

func (s *Scheduler) jobLockPath(name string) string { return s.cfg.LockPath + "." + name }

// loadState reads the shared last-run minutes. A missing or unreadable file
// yields an empty state.
func (s *Scheduler) loadState() map[string]time.Time {
	state := make(map[string]time.Time)
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Scheduler state read failed", "error", err)
		}
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Scheduler state corrupt, ignoring", "error", err)
		return make(map[string]time.Time)
	}
	return state
}

func (s *Scheduler) saveState(state map[string]time.Time) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tmp := s.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath())
}

func (s *Scheduler) dispatch(ctx context.Context, job *Job) bool {
	sem, ok := s.semaphores[job.Category]
	if !ok {
		sem = s.semaphores[CategoryDefault]
	}
	if !sem.tryAcquire() {
		slog.Warn("Scheduler job skipped: concurrency limit", "job", job.Name, "category", job.Category)
		return false
	}
	jobLock := NewFileLock(s.jobLockPath(job.Name))
	if held, err := jobLock.TryLock(); err != nil || !held {
		sem.release()
		slog.Warn("Scheduler job skipped: previous run still active", "job", job.Name, "error", err)
		return false
	}

	slog.Info("Scheduler dispatching job", "job", job.Name)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sem.release()
		defer jobLock.Unlock()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scheduler job panicked", "job", job.Name, "panic", r)
			}
		}()

		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		start := time.Now()
		if err := job.Run(jobCtx); err != nil {
			slog.Warn("Scheduler job failed", "job", job.Name, "duration", time.Since(start), "error", err)
			return
		}
		slog.Info("Scheduler job finished", "job", job.Name, "duration", time.Since(start))
	}()
	return true
}

// Wait blocks until dispatched jobs finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
