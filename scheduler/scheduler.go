// Package scheduler runs the periodic jobs: alert detectors, snooze wake-up,
// health snapshots, goal refresh, KPI rollups and the outbox drain.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/lock"
)

// ErrSkipped is returned by RunNow when another replica holds the job lock.
var ErrSkipped = errors.New("job skipped: lock held elsewhere")

type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]Job
	locker  lock.Locker
	logger  *logrus.Logger
	timeout time.Duration

	// LockWait bounds how long a run waits for the job lock before skipping.
	LockWait time.Duration
}

func New(locker lock.Locker, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = config.GetLogger()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:     map[string]Job{},
		locker:   locker,
		logger:   logger,
		timeout:  5 * time.Minute,
		LockWait: time.Second,
	}
}

// Register adds a job. An empty spec disables it.
func (s *Scheduler) Register(j Job) error {
	if _, ok := s.jobs[j.Name]; ok {
		return fmt.Errorf("job %s registered twice", j.Name)
	}
	s.jobs[j.Name] = j
	if j.Spec == "" {
		s.logger.WithField("job", j.Name).Info("job has no schedule, run on demand only")
		return nil
	}
	if _, err := s.cron.AddFunc(j.Spec, func() { s.fire(j.Name) }); err != nil {
		delete(s.jobs, j.Name)
		return fmt.Errorf("schedule %s %q: %w", j.Name, j.Spec, err)
	}
	return nil
}

func (s *Scheduler) Names() []string {
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.jobs)).Info("starting scheduler")
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) fire(name string) {
	err := s.RunNow(context.Background(), name)
	if err != nil && !errors.Is(err, ErrSkipped) {
		config.LogError(s.logger, "scheduler/scheduler.go", "fire", "run job", name, err)
	}
}

// RunNow runs one job under its lock, bypassing the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, s.LockWait)
	rel, err := s.locker.Obtain(lockCtx, "job:"+name, s.timeout)
	cancelLock()
	if err != nil {
		jobRuns.WithLabelValues(name, "skipped").Inc()
		s.logger.WithField("job", name).Debug("job lock busy: " + err.Error())
		return ErrSkipped
	}
	defer func() {
		if err := rel.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithField("job", name).Warn("release job lock: " + err.Error())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	err = j.Run(ctx)
	jobDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err != nil {
		jobRuns.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("job %s: %w", name, err)
	}
	jobRuns.WithLabelValues(name, "success").Inc()
	return nil
}

// cronLogger routes cron's own messages through logrus.
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{"field": "cron"}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
