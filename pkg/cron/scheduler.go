// Package cron runs configured agent goals on cron schedules.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idris/kestrel/internal/config"
	"github.com/idris/kestrel/pkg/agent"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner is the agent surface the scheduler submits goals to.
type Runner interface {
	Run(ctx context.Context, goal string, overrides *agent.ConfigOverrides, cbs *agent.Callbacks) (*agent.Run, error)
}

// RunSaver persists terminal runs. The run store satisfies it; a nil saver
// disables persistence.
type RunSaver interface {
	Save(ctx context.Context, run *agent.Run) error
}

// JobState tracks runtime state of a scheduled job.
type JobState struct {
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastStatus        string     `json:"last_status,omitempty"` // "ok", "error", or "skipped"
	LastError         string     `json:"last_error,omitempty"`
	LastDurationMs    *int64     `json:"last_duration_ms,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors,omitempty"`
}

// Scheduler submits configured goals to the agent on cron schedules.
// Overlapping firings of the same job are skipped, never queued.
type Scheduler struct {
	runner Runner
	store  RunSaver
	logger zerolog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	states  map[string]*JobState
	running map[string]bool
}

// Options configures a Scheduler.
type Options struct {
	Runner Runner
	Store  RunSaver
	Logger zerolog.Logger
	Jobs   []config.JobConfig
}

// New creates a scheduler and registers the configured jobs. Invalid cron
// expressions fail construction rather than silently never firing.
func New(opts Options) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	s := &Scheduler{
		runner:  opts.Runner,
		store:   opts.Store,
		logger:  opts.Logger,
		cron:    cron.New(),
		states:  make(map[string]*JobState),
		running: make(map[string]bool),
	}

	for _, job := range opts.Jobs {
		job := job
		s.states[job.Name] = &JobState{}
		if _, err := s.cron.AddFunc(job.Schedule, func() {
			s.fire(job)
		}); err != nil {
			return nil, fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
	}

	return s, nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.states)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// States returns a snapshot of per-job state.
func (s *Scheduler) States() map[string]JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobState, len(s.states))
	for name, state := range s.states {
		out[name] = *state
	}
	return out
}

func (s *Scheduler) fire(job config.JobConfig) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Warn().Str("job", job.Name).Msg("Previous firing still running, skipping")
		s.recordSkip(job.Name)
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	s.logger.Info().Str("job", job.Name).Msg("Scheduled job firing")
	start := time.Now()

	var overrides *agent.ConfigOverrides
	if job.MaxSteps > 0 {
		overrides = &agent.ConfigOverrides{MaxSteps: &job.MaxSteps}
	}

	run, err := s.runner.Run(context.Background(), job.Goal, overrides, nil)
	duration := time.Since(start)

	if err == nil && s.store != nil {
		if saveErr := s.store.Save(context.Background(), run); saveErr != nil {
			s.logger.Warn().Err(saveErr).Str("job", job.Name).Msg("Failed to persist run")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.states[job.Name]
	now := time.Now()
	ms := duration.Milliseconds()
	state.LastRunAt = &now
	state.LastDurationMs = &ms

	switch {
	case err != nil:
		state.LastStatus = "error"
		state.LastError = err.Error()
		state.ConsecutiveErrors++
		s.logger.Error().Err(err).Str("job", job.Name).Msg("Scheduled job rejected")
	case run.Status == agent.StatusFailed:
		state.LastStatus = "error"
		state.LastError = run.Error
		state.ConsecutiveErrors++
		s.logger.Error().Str("job", job.Name).Str("error", run.Error).Msg("Scheduled job failed")
	default:
		state.LastStatus = "ok"
		state.LastError = ""
		state.ConsecutiveErrors = 0
		s.logger.Info().
			Str("job", job.Name).
			Str("status", string(run.Status)).
			Dur("duration", duration).
			Msg("Scheduled job finished")
	}
}

func (s *Scheduler) recordSkip(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[name]; ok {
		state.LastStatus = "skipped"
	}
}
