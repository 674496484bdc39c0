package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/guestpass-service/internal/observability"
	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// JobReport counts what one run did with the registrations it looked at.
type JobReport struct {
	Found     int `json:"found"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Job is one entry in the scheduler's job table.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) (JobReport, error)
}

// JobStatus is the bookkeeping kept for each job.
type JobStatus struct {
	Name         string     `json:"name"`
	Interval     string     `json:"interval"`
	Running      bool       `json:"running"`
	Runs         int        `json:"runs"`
	LastStarted  *time.Time `json:"last_started_at,omitempty"`
	LastFinished *time.Time `json:"last_finished_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastReport   JobReport  `json:"last_report"`
}

// Scheduler drives a fixed set of jobs on their own intervals. The next pass of a job
// is due one interval after its previous pass finished, whether that pass came from the
// timer or from RunNow. A job never overlaps itself.
type Scheduler struct {
	jobs    []Job
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   func() time.Time

	mu       sync.Mutex
	status   map[string]*JobStatus
	finished map[string]chan struct{}
}

// NewScheduler validates the job table.
func NewScheduler(jobs []Job, logger *zap.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		jobs:    jobs,
		logger:  logger,
		metrics: metrics,
		clock:   time.Now,
		status:   make(map[string]*JobStatus, len(jobs)),
		finished: make(map[string]chan struct{}, len(jobs)),
	}
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job %q is incomplete", job.Name)
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q needs a positive interval", job.Name)
		}
		if _, dup := s.status[job.Name]; dup {
			return nil, fmt.Errorf("job %q registered twice", job.Name)
		}
		s.status[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval.String()}
		s.finished[job.Name] = make(chan struct{}, 1)
	}
	return s, nil
}

// Run blocks until ctx is cancelled, firing each job on its timer.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	timer := time.NewTimer(job.Interval)
	defer timer.Stop()
	if job.RunOnStart {
		s.trigger(ctx, job)
	}
	finished := s.finished[job.Name]
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.trigger(ctx, job)
		case <-finished:
			timer.Reset(job.Interval)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, job Job) {
	if _, err := s.execute(ctx, job); err != nil && !apperrors.HasCode(err, apperrors.CodeConflict) {
		s.logger.Error("job run failed", zap.String("job", job.Name), zap.Error(err))
	}
}

// RunNow runs the named job immediately and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobReport, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.execute(ctx, job)
		}
	}
	return JobReport{}, apperrors.NewNotFound("job", map[string]any{"name": name})
}

// Status returns a snapshot of every job's bookkeeping in table order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *s.status[job.Name])
	}
	return out
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

func (s *Scheduler) execute(ctx context.Context, job Job) (JobReport, error) {
	s.mu.Lock()
	st := s.status[job.Name]
	if st.Running {
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping", zap.String("job", job.Name))
		return JobReport{}, apperrors.NewConflict("job is already running", map[string]any{"name": job.Name})
	}
	started := s.clock()
	st.Running = true
	st.LastStarted = &started
	s.mu.Unlock()

	s.logger.Info("job started", zap.String("job", job.Name))
	report, err := job.Run(ctx)

	finished := s.clock()
	s.mu.Lock()
	st.Running = false
	st.Runs++
	st.LastFinished = &finished
	st.LastReport = report
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	select {
	case s.finished[job.Name] <- struct{}{}:
	default:
	}

	s.metrics.RecordJobRun(job.Name, err == nil)
	s.logger.Info("job finished",
		zap.String("job", job.Name),
		zap.Duration("duration", finished.Sub(started)),
		zap.Int("found", report.Found),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Error(err))
	return report, err
}
