package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calendarpress/calendar-engine/internal/production"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
)

// fakeRunner fails calendars whose ID is in fail and tracks concurrency
type fakeRunner struct {
	delay time.Duration
	fail  map[string]bool

	mu        sync.Mutex
	active    int
	maxActive int
	runs      []string
}

func (f *fakeRunner) Run(ctx context.Context, cal *calendarformat.Calendar) production.Outcome {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.runs = append(f.runs, cal.ID)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	out := production.Outcome{RenderID: "r-" + cal.ID, CalendarID: cal.ID, Status: production.StatusCompleted}
	if f.fail[cal.ID] {
		out.Status = production.StatusFailed
		out.Err = &production.StageError{Stage: "render", Err: errors.New("boom")}
	}
	return out
}

func waitDone(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueueRendersAll(t *testing.T) {
	runner := &fakeRunner{delay: 10 * time.Millisecond, fail: map[string]bool{"b": true}}
	q := NewQueue(runner, 2, nil)
	defer q.Stop()

	idA := q.Enqueue("a.json", &calendarformat.Calendar{ID: "a"})
	idB := q.Enqueue("b.json", &calendarformat.Calendar{ID: "b"})
	idC := q.Enqueue("c.json", &calendarformat.Calendar{ID: "c"})
	if idA == idB || idB == idC {
		t.Fatal("job IDs must be unique")
	}

	waitDone(t, q)

	if job := q.GetJob(idA); job == nil || job.Status != StatusCompleted || job.Outcome.RenderID != "r-a" {
		t.Errorf("job a = %+v", job)
	}
	jobB := q.GetJob(idB)
	if jobB == nil || jobB.Status != StatusFailed || jobB.Error == nil {
		t.Fatalf("job b = %+v", jobB)
	}
	var se *production.StageError
	if !errors.As(jobB.Error, &se) || se.Stage != "render" {
		t.Errorf("stage error lost: %v", jobB.Error)
	}
	if !jobB.Done() || jobB.FinishedAt.Before(jobB.StartedAt) {
		t.Errorf("timestamps not set: %+v", jobB)
	}

	s := q.Stats()
	if s.Completed != 2 || s.Failed != 1 || s.Total() != 3 {
		t.Errorf("stats = %+v", s)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 3 {
		t.Errorf("failed jobs must not be retried, runs = %v", runner.runs)
	}
}

func TestQueueRunsWorkersConcurrently(t *testing.T) {
	runner := &fakeRunner{delay: 300 * time.Millisecond}
	q := NewQueue(runner, 2, nil)
	defer q.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		q.Enqueue(id+".json", &calendarformat.Calendar{ID: id})
	}
	waitDone(t, q)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxActive != 2 {
		t.Errorf("max concurrent renders = %d, want 2", runner.maxActive)
	}
}

func TestGetAllJobsReturnsCopies(t *testing.T) {
	q := NewQueue(&fakeRunner{}, 1, nil)
	defer q.Stop()

	q.Enqueue("a.json", &calendarformat.Calendar{ID: "a"})
	waitDone(t, q)

	jobs := q.GetAllJobs()
	jobs[0].Status = "tampered"

	if q.GetAllJobs()[0].Status != StatusCompleted {
		t.Error("GetAllJobs should return copies")
	}
	if q.GetJob("missing") != nil {
		t.Error("Expected nil for unknown job")
	}
}

func TestClearCompleted(t *testing.T) {
	q := NewQueue(&fakeRunner{fail: map[string]bool{"b": true}}, 1, nil)
	defer q.Stop()

	q.Enqueue("a.json", &calendarformat.Calendar{ID: "a"})
	q.Enqueue("b.json", &calendarformat.Calendar{ID: "b"})
	waitDone(t, q)

	q.ClearCompleted()

	jobs := q.GetAllJobs()
	if len(jobs) != 1 || jobs[0].Status != StatusFailed {
		t.Errorf("only failed jobs should remain, got %+v", jobs)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	q := NewQueue(&fakeRunner{delay: time.Hour}, 1, nil)
	defer q.Stop()

	q.Enqueue("slow.json", &calendarformat.Calendar{ID: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := q.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

func TestStopCancelsInFlight(t *testing.T) {
	q := NewQueue(&fakeRunner{delay: time.Hour}, 1, nil)
	q.Enqueue("slow.json", &calendarformat.Calendar{ID: "slow"})

	deadline := time.Now().Add(5 * time.Second)
	for q.Stats().Rendering == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
