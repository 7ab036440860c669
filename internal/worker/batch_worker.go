package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/imgtranslate/api/internal/model"
	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/websocket"
)

// BatchTranslator runs a batch through the provider.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, items []model.BatchItem, onProgress service.ProgressFunc) (*model.BatchReport, error)
}

// BatchWorker processes async batch jobs
type BatchWorker struct {
	translator BatchTranslator
	jobs       *service.JobService
	hub        *websocket.Hub
}

// NewBatchWorker creates a new batch worker
func NewBatchWorker(translator BatchTranslator, jobs *service.JobService, hub *websocket.Hub) *BatchWorker {
	return &BatchWorker{
		translator: translator,
		jobs:       jobs,
		hub:        hub,
	}
}

// ProcessTask handles batch task processing
func (w *BatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	logger := slog.With("job_id", jobID)
	logger.Info("starting batch job")

	var payload model.BatchJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal batch payload: %w", err)
	}

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			// snapshot expired; nobody can observe this job any more
			logger.Warn("batch job snapshot missing, skipping")
			return nil
		}
		return err
	}
	if job.Status == model.JobStatusCanceled {
		logger.Info("batch job canceled before start")
		w.hub.BroadcastComplete(jobID, model.BatchSummary{
			Total:     job.Total,
			Canceled:  true,
			ResultIDs: []int64{},
			Errors:    []string{},
		})
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	report, err := w.translator.TranslateBatch(runCtx, payload.Items, func(p model.BatchProgress) {
		w.updateProgress(ctx, jobID, p, cancel)
	})
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	// the run context may already be canceled
	saveCtx := context.WithoutCancel(ctx)
	if err := w.jobs.Complete(saveCtx, jobID, report); err != nil {
		w.failJob(saveCtx, jobID, "Failed to save result")
		return err
	}

	if report.TimedOut {
		logger.Warn("batch job timed out", "completed", report.Completed, "total", report.Total)
		w.hub.BroadcastError(jobID, model.WSErrorBatchTimedOut,
			fmt.Sprintf("%s after %d of %d items", service.ErrBatchTimedOut, report.Completed, report.Total))
		return nil
	}

	w.hub.BroadcastComplete(jobID, report.Summary())
	logger.Info("batch job finished",
		"total", report.Total,
		"completed", report.Completed,
		"failed", len(report.Errors),
		"canceled", report.Canceled,
	)
	return nil
}

func (w *BatchWorker) updateProgress(ctx context.Context, jobID string, p model.BatchProgress, cancel context.CancelFunc) {
	status := model.JobStatusRunning
	canceled, err := w.jobs.UpdateProgress(ctx, jobID, p)
	if err != nil {
		slog.Warn("failed to update progress", "job_id", jobID, "error", err)
	}
	if canceled {
		status = model.JobStatusCanceled
		cancel()
	}
	w.hub.BroadcastProgress(jobID, status, p)
}

func (w *BatchWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.jobs.Fail(ctx, jobID, errMsg); err != nil {
		slog.Error("failed to mark job as failed", "job_id", jobID, "error", err)
	}
	w.hub.BroadcastError(jobID, model.WSErrorBatchFailed, errMsg)
}
