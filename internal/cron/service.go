package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// DefaultTick is the trigger scan resolution.
const DefaultTick = 30 * time.Second

// jobTimeout bounds the execution of one job's command sequence.
const jobTimeout = 2 * time.Minute

// ErrJobNotFound is returned by Cancel for unknown job ids.
type ErrJobNotFound struct {
	ID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job not found: %s", e.ID)
}

// Runner executes a single tool call. Implemented by the command
// executor; injected after construction to break the mutual dependency
// (the executor delegates schedule_job back to this service).
type Runner interface {
	Execute(ctx context.Context, call types.ToolCall) types.ExecutionResult
}

// Notifier delivers a proactive message to an identity. Implemented by
// the gateway adapter.
type Notifier interface {
	Send(ctx context.Context, identity, text string) error
}

// Service manages job scheduling and execution. A single goroutine scans
// for due jobs, so the read-fire-advance sequence is atomic per job.
type Service struct {
	store  *Store
	tick   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	runner Runner
	notify Notifier

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewService creates a service over the given store.
func NewService(store *Store) *Service {
	return &Service{
		store: store,
		tick:  DefaultTick,
		now:   time.Now,
	}
}

// SetRunner wires the command executor. Must be called before Start.
func (s *Service) SetRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

// SetNotifier wires the delivery channel for fire notifications.
// Optional: without one, results are only logged.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = n
}

// Create validates the expression, computes the first fire time and
// persists the job. Fails with *ErrInvalidExpression on a bad schedule;
// nothing is persisted in that case.
func (s *Service) Create(expr, description string, commands []types.ToolCall, createdBy string, oneShot bool) (*Job, error) {
	now := s.now()
	next, err := Next(expr, now)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.NewString()[:8],
		Expr:        expr,
		Description: description,
		Commands:    commands,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		NextRun:     next,
		Enabled:     true,
		OneShot:     oneShot,
	}

	s.store.Add(job)
	if err := s.store.Save(); err != nil {
		s.store.Remove(job.ID)
		return nil, err
	}

	L_info("cron: job created", "id", job.ID, "expr", expr, "description", description, "nextRun", next)
	return job, nil
}

// List returns all jobs, optionally filtered by creator.
func (s *Service) List(createdBy string) []*Job {
	jobs := s.store.All()
	if createdBy == "" {
		return jobs
	}
	var out []*Job
	for _, j := range jobs {
		if j.CreatedBy == createdBy {
			out = append(out, j)
		}
	}
	return out
}

// Cancel removes a job. Fails with *ErrJobNotFound if absent.
func (s *Service) Cancel(id string) error {
	if !s.store.Remove(id) {
		return &ErrJobNotFound{ID: id}
	}
	if err := s.store.Save(); err != nil {
		return err
	}
	L_info("cron: job cancelled", "id", id)
	return nil
}

// Start recovers persisted schedules and launches the trigger scan loop.
func (s *Service) Start(ctx context.Context) {
	s.recover()

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		L_info("cron: service started", "jobs", s.store.Len(), "tick", s.tick)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.fireDue(ctx)
			}
		}
	}()
}

// Stop halts the scan loop and waits for an in-flight scan to finish.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	L_info("cron: service stopped")
}

// recover applies the skip-missed policy: any job whose persisted fire
// time is already past gets its next occurrence recomputed from now.
// Missed occurrences are not backfilled; stale home-automation actions
// are not meaningfully replayable.
func (s *Service) recover() {
	now := s.now()
	changed := false

	for _, job := range s.store.All() {
		if !job.Enabled {
			continue
		}
		if !job.NextRun.IsZero() && job.NextRun.After(now) {
			continue
		}
		next, err := Next(job.Expr, now)
		if err != nil {
			L_error("cron: recovery failed for job, disabling", "id", job.ID, "error", err)
			s.store.Update(job.ID, func(j *Job) { j.Enabled = false })
			changed = true
			continue
		}
		L_warn("cron: missed fire skipped", "id", job.ID, "missed", job.NextRun, "nextRun", next)
		s.store.Update(job.ID, func(j *Job) { j.NextRun = next })
		changed = true
	}

	if changed {
		if err := s.store.Save(); err != nil {
			L_error("cron: failed to persist recovery", "error", err)
		}
	}
}

// fireDue runs every due job. Failures are logged and never crash the
// loop; a failing job stays on its normal cadence.
func (s *Service) fireDue(ctx context.Context) {
	now := s.now()
	for _, job := range s.store.All() {
		if !job.Enabled || job.NextRun.After(now) {
			continue
		}
		s.fire(ctx, job, now)
	}
}

// fire executes one job occurrence. The advance of NextRun is persisted
// BEFORE the commands run: a crash mid-execution loses that occurrence
// rather than doubling it on restart.
func (s *Service) fire(ctx context.Context, job *Job, now time.Time) {
	next, err := Next(job.Expr, now)
	if err != nil {
		L_error("cron: cannot advance job, disabling", "id", job.ID, "error", err)
		s.store.Update(job.ID, func(j *Job) { j.Enabled = false })
		if saveErr := s.store.Save(); saveErr != nil {
			L_error("cron: failed to persist disable", "id", job.ID, "error", saveErr)
		}
		return
	}

	fired := now
	s.store.Update(job.ID, func(j *Job) {
		j.NextRun = next
		j.LastRun = &fired
	})
	if err := s.store.Save(); err != nil {
		// Without a durable advance the fire is not safe to run.
		L_error("cron: failed to persist advance, skipping fire", "id", job.ID, "error", err)
		return
	}

	L_info("cron: firing job", "id", job.ID, "description", job.Description, "commands", len(job.Commands), "nextRun", next)

	s.mu.Lock()
	runner := s.runner
	notify := s.notify
	s.mu.Unlock()

	if runner == nil {
		L_error("cron: no runner wired, job skipped", "id", job.ID)
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	var summaries []string
	status := StatusOK
	lastError := ""
	for _, cmd := range job.Commands {
		result := runner.Execute(execCtx, cmd)
		summaries = append(summaries, result.Summary)
		if !result.Success {
			status = StatusError
			lastError = result.Error
			L_error("cron: job command failed", "id", job.ID, "kind", cmd.Kind, "error", result.Error)
		}
	}

	if job.OneShot {
		s.store.Remove(job.ID)
	} else {
		s.store.Update(job.ID, func(j *Job) {
			j.LastStatus = status
			j.LastError = lastError
		})
	}
	if err := s.store.Save(); err != nil {
		L_error("cron: failed to persist run state", "id", job.ID, "error", err)
	}

	if notify != nil && job.CreatedBy != "" {
		text := fmt.Sprintf("⏰ %s\n%s", job.Description, strings.Join(summaries, "\n"))
		if err := notify.Send(execCtx, job.CreatedBy, text); err != nil {
			L_error("cron: fire notification failed", "id", job.ID, "error", err)
		}
	}
}
