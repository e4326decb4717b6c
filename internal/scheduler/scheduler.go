package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is a named periodic task. Run receives a context bounded by Timeout.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs the collaborators' refresh jobs (mail poll, weather refresh,
// radar capture, image cleanup) on their own cadences.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
}

// New creates a new Scheduler.
func New() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A slow job must never overlap with its next run.
	s.SingletonModeAll()
	return &Scheduler{scheduler: s}
}

// Add registers a job. Jobs run once immediately on Start and then every Interval.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no run function", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %q has non-positive interval %s", job.Name, job.Interval)
	}
	if job.Timeout <= 0 {
		job.Timeout = job.Interval
	}

	_, err := s.scheduler.Every(job.Interval).Tag(job.Name).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			log.Printf("scheduler: job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: schedule %s: %w", job.Name, err)
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// Start starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		log.Println("scheduler: no jobs configured; nothing to schedule")
		return nil
	}

	for _, j := range s.jobs {
		log.Printf("scheduler: %s every %s", j.Name, j.Interval)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
