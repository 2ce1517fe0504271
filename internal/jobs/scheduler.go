package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/metrics"
)

var (
	// ErrJobRunning is returned when a job is triggered while a run is in progress
	ErrJobRunning = errors.New("job is already running")
	// ErrUnknownJob is returned when triggering a name that was never registered
	ErrUnknownJob = errors.New("unknown job")
)

// Func is one run of a job
type Func func(ctx context.Context) error

type job struct {
	name    string
	spec    string
	run     Func
	running atomic.Bool
	lastRun atomic.Pointer[time.Time]
}

// Scheduler runs named jobs on cron specs. A job never overlaps itself, whether it was
// started by its schedule or by Trigger.
type Scheduler struct {
	cron    *cron.Cron
	metrics *metrics.LedgerMetrics
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	jobs    map[string]*job
}

func NewScheduler(m *metrics.LedgerMetrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}
}

// Register adds a job under name. An empty spec registers a trigger-only job.
func (s *Scheduler) Register(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{name: name, spec: spec, run: fn}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { _ = s.execute(s.ctx, j) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
	}
	s.jobs[name] = j
	log.WithFields(log.Fields{"job": name, "schedule": spec}).Info("[Scheduler] Job registered")
	return nil
}

// Trigger runs a job now and waits for it to finish
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if !j.running.CompareAndSwap(false, true) {
		s.metrics.RecordJobSkipped(j.name)
		log.WithField("job", j.name).Warn("[Scheduler] Previous run still in progress, skipping")
		return ErrJobRunning
	}
	defer j.running.Store(false)

	start := time.Now()
	err := j.run(ctx)
	elapsed := time.Since(start)
	j.lastRun.Store(&start)

	status := "success"
	entry := log.WithFields(log.Fields{"job": j.name, "duration": elapsed.String()})
	if err != nil {
		status = "error"
		entry.WithError(err).Error("[Scheduler] Job failed")
	} else {
		entry.Debug("[Scheduler] Job finished")
	}
	s.metrics.RecordJob(j.name, status, elapsed.Seconds())
	return err
}

// JobStatus describes a registered job
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule,omitempty"`
	Running  bool       `json:"running"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// Status lists registered jobs sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:     j.name,
			Schedule: j.spec,
			Running:  j.running.Load(),
			LastRun:  j.lastRun.Load(),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	log.Println("[Scheduler] Starting")
	s.cron.Start()
}

// Stop halts the schedule, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	log.Println("[Scheduler] Stopping")
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
}
