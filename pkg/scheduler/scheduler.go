// Package scheduler implements C8: one goroutine per metric family, each
// looping sleep-then-run with its own configured interval, reporting its
// outcome into the jobs_counter/jobs_time_histogram_seconds vectors and
// stopping together on cancellation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/rs/zerolog"
)

// Job is one periodic pass: a label for jobs_counter/jobs_time_histogram,
// the interval between runs, and the function that performs the work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, nowUnix int64) error
}

// Scheduler runs a set of Jobs concurrently until Stop is called.
type Scheduler struct {
	jobs       []Job
	vectors    *metrics.Vectors
	recordJobs bool
	logger     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. recordJobs gates whether job outcomes are written
// to jobs_counter/jobs_time_histogram_seconds, mirroring the rest of the
// self-metrics toggle set.
func New(jobs []Job, vectors *metrics.Vectors, recordJobs bool) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		vectors:    vectors,
		recordJobs: recordJobs,
		logger:     log.WithComponent("scheduler"),
	}
}

// Start launches every job's loop in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}()
	}
}

// Stop cancels every job's context and waits for the loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// runLoop sleeps then runs job.Run, forever, until ctx is cancelled. The
// first sleep is capped at 10 seconds so a long-interval job still produces
// its first sample promptly after startup (original_source's
// jobs_scheduler.rs first_delay clamp).
func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	firstDelay := job.Interval
	if firstDelay > 10*time.Second {
		firstDelay = 10 * time.Second
	}

	timer := time.NewTimer(firstDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.runOnce(ctx, job)

		timer.Reset(job.Interval)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := metrics.NewTimer()
	err := job.Run(ctx, time.Now().Unix())
	result := types.JobSuccess
	if err != nil {
		result = types.JobFail
		s.logger.Error().Err(err).Str("job", job.Name).Msg("scheduler pass failed")
	}

	if s.recordJobs && s.vectors != nil {
		s.vectors.JobsCounter.WithLabelValues(job.Name, string(result)).Inc()
		start.ObserveDurationVec(s.vectors.JobsTimeHistogram, job.Name)
	}
}
