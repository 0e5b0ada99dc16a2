// Package cron runs named housekeeping jobs on cron schedules.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled task.
type Job struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"` // cron expression or descriptor (@every 1m)

	task TaskFunc
}

// RunRecord tracks a job execution.
type RunRecord struct {
	JobID     string    `json:"jobId"`
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// TaskFunc is called when a job fires.
type TaskFunc func(ctx context.Context) error

const (
	jobTimeout = time.Minute
	maxRuns    = 1000
	keepRuns   = 500
)

// parser accepts standard 5-field specs, an optional leading seconds field and descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler manages in-memory cron jobs.
type Scheduler struct {
	mu       sync.RWMutex
	cron     *cron.Cron
	jobs     map[string]*Job
	entryMap map[string]cron.EntryID // jobID → cron entry
	runs     []RunRecord
	seq      int
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		jobs:     make(map[string]*Job),
		entryMap: make(map[string]cron.EntryID),
	}
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("cron scheduler started", "jobs", len(s.List()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Add schedules task under name.
func (s *Scheduler) Add(name, schedule string, task TaskFunc) (*Job, error) {
	if task == nil {
		return nil, fmt.Errorf("job %q has no task", name)
	}
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	job := &Job{
		ID:       fmt.Sprintf("job_%d", s.seq),
		Name:     name,
		Schedule: schedule,
		task:     task,
	}
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.jobs[job.ID] = job
	s.entryMap[job.ID] = entryID
	return job, nil
}

// Remove deletes a job.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if entryID, ok := s.entryMap[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entryMap, jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// List returns all jobs.
func (s *Scheduler) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

// Runs returns a copy of the recorded executions, oldest first.
func (s *Scheduler) Runs() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, len(s.runs))
	copy(out, s.runs)
	return out
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(jobID string) error {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	s.executeJob(job)
	return nil
}

func (s *Scheduler) executeJob(job *Job) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	err := job.task(ctx)
	duration := time.Since(start)

	record := RunRecord{
		JobID:     job.ID,
		StartedAt: start,
		Duration:  duration.String(),
		Success:   err == nil,
	}
	if err != nil {
		record.Error = err.Error()
		slog.Error("cron job failed", "job", job.Name, "error", err, "duration", duration)
	} else {
		slog.Debug("cron job completed", "job", job.Name, "duration", duration)
	}

	s.mu.Lock()
	s.runs = append(s.runs, record)
	if len(s.runs) > maxRuns {
		s.runs = s.runs[len(s.runs)-keepRuns:]
	}
	s.mu.Unlock()
}
