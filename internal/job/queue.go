// Package job runs calendar renders on a pool of workers and tracks their
// status
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calendarpress/calendar-engine/internal/production"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"go.uber.org/zap"
)

// Job statuses
const (
	StatusQueued    = "queued"
	StatusRendering = "rendering"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

const pollInterval = 100 * time.Millisecond

// Runner produces one calendar. *production.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, cal *calendarformat.Calendar) production.Outcome
}

// Job is one calendar waiting for or going through a render
type Job struct {
	ID         string
	Source     string // description file the job came from
	Calendar   *calendarformat.Calendar
	Status     string
	Outcome    production.Outcome
	Error      error
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Done reports whether the job reached a final status
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Stats counts jobs per status
type Stats struct {
	Queued    int
	Rendering int
	Completed int
	Failed    int
}

// Total is the number of jobs counted
func (s Stats) Total() int {
	return s.Queued + s.Rendering + s.Completed + s.Failed
}

// Queue feeds jobs to workers. A failed render is final; there are no
// retries.
type Queue struct {
	jobs    []*Job
	seq     int
	mu      sync.Mutex
	runner  Runner
	workers int
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue starts workers goroutines pulling from the queue
func NewQueue(runner Runner, workers int, log *zap.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		jobs:    make([]*Job, 0),
		runner:  runner,
		workers: workers,
		log:     log.With(zap.String("component", "queue")),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

// Enqueue adds a calendar to the queue and returns the job ID
func (q *Queue) Enqueue(source string, cal *calendarformat.Calendar) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	job := &Job{
		ID:        fmt.Sprintf("job_%d", q.seq),
		Source:    source,
		Calendar:  cal,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	q.jobs = append(q.jobs, job)

	q.log.Debug("job queued", zap.String("job", job.ID), zap.String("source", source))
	return job.ID
}

// Workers is the number of concurrent renders
func (q *Queue) Workers() int {
	return q.workers
}

func (q *Queue) worker(n int) {
	defer q.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			// drain whatever is queued before waiting for the next tick
			for q.ctx.Err() == nil && q.processNextJob(n) {
			}
		}
	}
}

// processNextJob renders the oldest queued job. It reports false when
// nothing was queued.
func (q *Queue) processNextJob(worker int) bool {
	q.mu.Lock()

	var job *Job
	for _, j := range q.jobs {
		if j.Status == StatusQueued {
			job = j
			job.Status = StatusRendering
			job.StartedAt = time.Now()
			break
		}
	}

	q.mu.Unlock()

	if job == nil {
		return false
	}

	q.log.Info("rendering",
		zap.String("job", job.ID),
		zap.String("source", job.Source),
		zap.Int("worker", worker))

	outcome := q.runner.Run(q.ctx, job.Calendar)

	q.mu.Lock()
	defer q.mu.Unlock()

	job.Outcome = outcome
	job.FinishedAt = time.Now()
	if outcome.Err != nil {
		job.Status = StatusFailed
		job.Error = outcome.Err
		q.log.Error("job failed", zap.String("job", job.ID), zap.Error(outcome.Err))
	} else {
		job.Status = StatusCompleted
		q.log.Info("job completed",
			zap.String("job", job.ID),
			zap.Int("files", len(outcome.Files)),
			zap.Duration("duration", outcome.Duration))
	}
	return true
}

// GetJob returns a copy of the job with jobID
func (q *Queue) GetJob(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			jobCopy := *job
			return &jobCopy
		}
	}

	return nil
}

// GetAllJobs returns copies of all jobs in enqueue order
func (q *Queue) GetAllJobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, len(q.jobs))
	for i, job := range q.jobs {
		jobCopy := *job
		jobs[i] = &jobCopy
	}

	return jobs
}

// Stats counts the jobs per status
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			s.Queued++
		case StatusRendering:
			s.Rendering++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// ClearCompleted removes completed jobs from the queue
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Job, 0)
	for _, job := range q.jobs {
		if job.Status != StatusCompleted {
			filtered = append(filtered, job)
		}
	}

	q.jobs = filtered
}

// Wait blocks until every job is done or ctx ends
func (q *Queue) Wait(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval / 2)
	defer ticker.Stop()

	for {
		s := q.Stats()
		if s.Queued == 0 && s.Rendering == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop cancels in-flight renders and waits for the workers to exit
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}
