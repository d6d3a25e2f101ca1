// internal/app/system/tasks/scheduler.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/gather/internal/app/system/metrics"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of scheduled work. Spec is a standard five-field
// cron expression or a descriptor such as "@daily".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// ValidateSpec reports whether spec parses as a standard cron schedule.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs jobs on their cron schedules in a fixed time zone.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]Job
}

// NewScheduler builds a stopped scheduler. loc nil means UTC; m may be nil.
func NewScheduler(loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]Job),
	}
}

// Add registers j. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("tasks: job needs a name and a run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("tasks: job %q already registered", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Spec, func() { _ = s.run(s.ctx, j) }); err != nil {
		return fmt.Errorf("tasks: schedule %q: %w", j.Name, err)
	}
	s.jobs[j.Name] = j
	s.log.Info("job scheduled", zap.String("job", j.Name), zap.String("schedule", j.Spec))
	return nil
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tasks: unknown job %q", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for running jobs until ctx is done.
// Jobs still running at that point see their context canceled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}

func (s *Scheduler) run(parent context.Context, j Job) error {
	ctx, cancel := context.WithTimeout(parent, timeouts.Long())
	defer cancel()

	start := time.Now()
	err := j.Run(ctx)
	d := time.Since(start)
	s.metrics.RecordJob(j.Name, d, err == nil)

	if err != nil {
		s.log.Error("job failed", zap.String("job", j.Name), zap.Duration("took", d), zap.Error(err))
		return err
	}
	s.log.Debug("job finished", zap.String("job", j.Name), zap.Duration("took", d))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
