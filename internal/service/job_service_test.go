package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/imgtranslate/api/internal/model"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (e *recordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{ID: "t", Queue: QueueBatches}, nil
}

// testRedis returns a client backed by an in-process Redis.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newJobService(t *testing.T) (*JobService, *recordingEnqueuer) {
	t.Helper()
	history, _ := newHistoryService(t)
	enq := &recordingEnqueuer{}
	return NewJobService(testRedis(t), enq, history, time.Minute, time.Minute), enq
}

func TestJobService_StartBatchQueuesTask(t *testing.T) {
	ctx := context.Background()
	svc, enq := newJobService(t)

	resp, err := svc.StartBatch(ctx, items("a", "b"))
	if err != nil {
		t.Fatalf("StartBatch() error = %v", err)
	}
	if resp.Status != model.JobStatusQueued || resp.Total != 2 || resp.JobID == "" {
		t.Errorf("StartBatch() = %+v", resp)
	}

	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeBatch {
		t.Fatalf("tasks = %v", enq.tasks)
	}
	var envelope struct {
		JobID   string                `json:"jobId"`
		Payload model.BatchJobPayload `json:"payload"`
	}
	if err := json.Unmarshal(enq.tasks[0].Payload(), &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.JobID != resp.JobID || len(envelope.Payload.Items) != 2 {
		t.Errorf("task payload = %+v", envelope)
	}

	var timeout time.Duration
	for _, opt := range enq.opts[0] {
		if opt.Type() == asynq.TimeoutOpt {
			timeout = opt.Value().(time.Duration)
		}
	}
	if want := 2*time.Minute + taskOverhead; timeout != want {
		t.Errorf("task timeout = %v, want %v", timeout, want)
	}

	status, err := svc.GetStatus(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Status != model.JobStatusQueued || status.Total != 2 {
		t.Errorf("GetStatus() = %+v", status)
	}
}

func TestJobService_StartBatchRejectsEmpty(t *testing.T) {
	svc := NewJobService(nil, &recordingEnqueuer{}, nil, time.Minute, time.Minute)
	if _, err := svc.StartBatch(context.Background(), nil); !errors.Is(err, model.ErrEmptyBatch) {
		t.Errorf("StartBatch(nil) error = %v, want ErrEmptyBatch", err)
	}
}

func TestJobService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newJobService(t)

	resp, err := svc.StartBatch(ctx, items("a", "b"))
	if err != nil {
		t.Fatal(err)
	}

	canceled, err := svc.UpdateProgress(ctx, resp.JobID, model.BatchProgress{Total: 2, Current: "a.png", Errors: []string{}})
	if err != nil || canceled {
		t.Fatalf("UpdateProgress() = %v, %v", canceled, err)
	}
	job, _ := svc.GetJob(ctx, resp.JobID)
	if job.Status != model.JobStatusRunning || job.StartedAt == nil || job.Current != "a.png" {
		t.Errorf("running job = %+v", job)
	}

	if _, err := svc.GetResult(ctx, resp.JobID); !errors.Is(err, ErrJobNotFinished) {
		t.Errorf("GetResult() on running job error = %v", err)
	}

	report := &model.BatchReport{Total: 2, Completed: 2, Results: []model.TranslationRecord{}, Errors: []string{"a.png: x", "b.png: y"}}
	if err := svc.Complete(ctx, resp.JobID, report); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	result, err := svc.GetResult(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if result.Status != model.JobStatusSucceeded || result.Completed != 2 || len(result.Errors) != 2 {
		t.Errorf("GetResult() = %+v", result)
	}

	if _, err := svc.Cancel(ctx, resp.JobID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("Cancel() on finished job error = %v, want ErrJobFinished", err)
	}
}

func TestJobService_CancelIsSeenByWorker(t *testing.T) {
	ctx := context.Background()
	svc, _ := newJobService(t)

	resp, err := svc.StartBatch(ctx, items("a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Cancel(ctx, resp.JobID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	canceled, err := svc.UpdateProgress(ctx, resp.JobID, model.BatchProgress{Total: 3, Completed: 1, Errors: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	if !canceled {
		t.Error("UpdateProgress should report the cancel")
	}

	job, _ := svc.GetJob(ctx, resp.JobID)
	if job.Status != model.JobStatusCanceled || job.Completed != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestJobService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newJobService(t)

	if _, err := svc.GetStatus(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetStatus() error = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.Cancel(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel() error = %v, want ErrJobNotFound", err)
	}
}

func TestJobService_CompleteTimedOutFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newJobService(t)

	resp, err := svc.StartBatch(ctx, items("a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}

	report := &model.BatchReport{
		Total:     3,
		Completed: 2,
		TimedOut:  true,
		Results:   []model.TranslationRecord{{ID: 7}},
		Errors:    []string{"b.png: context deadline exceeded"},
	}
	if err := svc.Complete(ctx, resp.JobID, report); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	job, err := svc.GetJob(ctx, resp.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusFailed {
		t.Errorf("Status = %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != "batch timed out after 2 of 3 items" {
		t.Errorf("Error = %v", job.Error)
	}
	if len(job.ResultIDs) != 1 || job.ResultIDs[0] != 7 || job.Completed != 2 {
		t.Errorf("partial progress lost: %+v", job)
	}
}

func TestJobService_UpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newJobService(t)

	resp, err := svc.StartBatch(ctx, items("a"))
	if err != nil {
		t.Fatal(err)
	}

	// a cancel landing between WATCH and EXEC must survive
	first := true
	err = svc.update(ctx, resp.JobID, func(job *model.Job) error {
		if first {
			first = false
			if _, err := svc.Cancel(ctx, resp.JobID); err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}
		}
		if job.Status != model.JobStatusCanceled {
			job.Status = model.JobStatusRunning
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update() error = %v", err)
	}

	job, _ := svc.GetJob(ctx, resp.JobID)
	if job.Status != model.JobStatusCanceled {
		t.Errorf("Status = %s, want canceled", job.Status)
	}
}
