package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/metrics"
)

// Job is a named piece of periodic maintenance
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// JobStatus reports the state of one job
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	LastRun   time.Time     `json:"lastRun,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	Runs      int           `json:"runs"`
	Running   bool          `json:"running"`
}

// Scheduler runs each job on its own ticker. It is meant to run in a single
// designated process.
type Scheduler struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	jobs    []Job
	status  map[string]*JobStatus
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates an empty scheduler
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.Named("scheduler"),
		now:    time.Now,
		status: make(map[string]*JobStatus),
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("job %s: scheduler already started", job.Name)
	}
	if _, exists := s.status[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	s.jobs = append(s.jobs, job)
	s.status[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval}
	return nil
}

// Start launches every job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every job and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.RUnlock()
	if job == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.execute(ctx, *job)
}

// JobStatus returns a snapshot of every job sorted by name.
func (s *Scheduler) JobStatus() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		_ = s.execute(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	s.setRunning(job.Name, true)
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		s.finish(job.Name, start, err)
		metrics.RecordJob(job.Name, err)
		if err != nil {
			s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		} else {
			s.logger.Debug("job finished",
				zap.String("job", job.Name),
				zap.Duration("took", s.now().Sub(start)),
			)
		}
	}()

	return job.Run(ctx)
}

func (s *Scheduler) setRunning(name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[name]; ok {
		st.Running = running
	}
}

func (s *Scheduler) finish(name string, start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		return
	}
	st.Running = false
	st.LastRun = start
	st.Runs++
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}
