package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/imgtranslate/api/internal/model"
)

const (
	TaskTypeBatch = "batch:translate"
	QueueBatches  = "batches"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFinished    = errors.New("job already finished")
	ErrJobNotFinished = errors.New("job not finished")
)

// maxUpdateAttempts bounds optimistic-lock retries on a job key.
const maxUpdateAttempts = 5

const (
	defaultItemTimeout = 5 * time.Minute
	// taskOverhead covers storage writes and snapshots around the provider calls.
	taskOverhead = time.Minute
)

// ErrBatchTimedOut is recorded on jobs whose task deadline expired.
var ErrBatchTimedOut = errors.New("batch timed out")

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService handles async batch job management
type JobService struct {
	redis       *redis.Client
	asynqClient TaskEnqueuer
	history     *HistoryService
	ttl         time.Duration
	itemTimeout time.Duration
}

// NewJobService creates a JobService. itemTimeout is the longest one
// provider call may take and sizes each task's deadline.
func NewJobService(redisClient *redis.Client, asynqClient TaskEnqueuer, history *HistoryService, ttl, itemTimeout time.Duration) *JobService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
		history:     history,
		ttl:         ttl,
		itemTimeout: itemTimeout,
	}
}

// StartBatch queues a new batch job
func (s *JobService) StartBatch(ctx context.Context, items []model.BatchItem) (*model.AsyncBatchResponse, error) {
	if len(items) == 0 {
		return nil, model.ErrEmptyBatch
	}
	for _, item := range items {
		if len(item.Image) == 0 {
			return nil, model.ErrImageRequired
		}
	}

	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeBatch,
		Status:    model.JobStatusQueued,
		Total:     len(items),
		ResultIDs: []int64{},
		Errors:    []string{},
		CreatedAt: now,
	}

	payloadBytes, err := json.Marshal(&model.BatchJobPayload{JobID: jobID, Items: items})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Save job to Redis
	if err := s.saveJob(ctx, s.redis, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newBatchTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Inserts are not idempotent, so a failed batch is never replayed
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueueBatches),
		asynq.MaxRetry(0),
		asynq.Timeout(s.taskTimeout(len(items))),
		asynq.Retention(s.ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.AsyncBatchResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		Total:     job.Total,
		CreatedAt: now,
	}, nil
}

// GetJob returns the raw job snapshot
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.getJob(ctx, s.redis, jobID)
}

// GetStatus returns the current status of a batch job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Total:       job.Total,
		Completed:   job.Completed,
		Current:     job.Current,
		Errors:      job.Errors,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the records a finished job produced
func (s *JobService) GetResult(ctx context.Context, jobID string) (*model.JobResultResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !job.Status.IsTerminal() {
		return nil, ErrJobNotFinished
	}

	results, err := s.history.GetMany(ctx, job.ResultIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}

	return &model.JobResultResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Total:     job.Total,
		Completed: job.Completed,
		Canceled:  job.Status == model.JobStatusCanceled,
		Results:   results,
		Errors:    errs,
	}, nil
}

// Cancel marks a job canceled. The worker stops before its next item.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.JobCancelResponse, error) {
	err := s.update(ctx, jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return ErrJobFinished
		}
		job.Status = model.JobStatusCanceled
		now := time.Now()
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.JobCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// UpdateProgress records a snapshot (called by worker). It reports
// whether the job has been canceled in the meantime.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress model.BatchProgress) (bool, error) {
	var canceled bool
	err := s.update(ctx, jobID, func(job *model.Job) error {
		job.Completed = progress.Completed
		job.Current = progress.Current
		job.ResultIDs = model.RecordIDs(progress.Results)
		job.Errors = progress.Errors

		if job.Status == model.JobStatusCanceled {
			canceled = true
			return nil
		}
		if job.Status == model.JobStatusQueued {
			job.Status = model.JobStatusRunning
			now := time.Now()
			job.StartedAt = &now
		}
		return nil
	})
	return canceled, err
}

// Complete stores the final report (called by worker)
func (s *JobService) Complete(ctx context.Context, jobID string, report *model.BatchReport) error {
	return s.update(ctx, jobID, func(job *model.Job) error {
		job.Completed = report.Completed
		job.Current = ""
		job.ResultIDs = model.RecordIDs(report.Results)
		job.Errors = report.Errors

		switch {
		case report.TimedOut:
			msg := fmt.Sprintf("%s after %d of %d items", ErrBatchTimedOut, report.Completed, report.Total)
			job.Status = model.JobStatusFailed
			job.Error = &msg
		case report.Canceled || job.Status == model.JobStatusCanceled:
			job.Status = model.JobStatusCanceled
		default:
			job.Status = model.JobStatusSucceeded
		}
		if job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
		return nil
	})
}

// Fail marks job as failed (called by worker)
func (s *JobService) Fail(ctx context.Context, jobID string, errMsg string) error {
	return s.update(ctx, jobID, func(job *model.Job) error {
		job.Status = model.JobStatusFailed
		job.Current = ""
		job.Error = &errMsg
		now := time.Now()
		job.CompletedAt = &now
		return nil
	})
}

// Helper methods

// update applies fn to the job under WATCH so concurrent writers retry
// instead of overwriting each other.
func (s *JobService) update(ctx context.Context, jobID string, fn func(*model.Job) error) error {
	key := jobKey(jobID)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			job, err := s.getJob(ctx, tx, jobID)
			if err != nil {
				return err
			}
			if err := fn(job); err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.saveJob(ctx, pipe, job)
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update job %s: too much contention", jobID)
}

func (s *JobService) saveJob(ctx context.Context, rdb redis.Cmdable, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, jobKey(job.ID), data, s.ttl).Err()
}

func (s *JobService) getJob(ctx context.Context, rdb redis.Cmdable, jobID string) (*model.Job, error) {
	data, err := rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// taskTimeout is the deadline for a batch of n items.
func (s *JobService) taskTimeout(n int) time.Duration {
	return s.itemTimeout*time.Duration(n) + taskOverhead
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func newBatchTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBatch, data), nil
}
