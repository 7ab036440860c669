package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imgtranslate/api/internal/model"
)

// Transformer is the provider side of a translation.
type Transformer interface {
	Transform(ctx context.Context, image []byte, mimeType string) ([]byte, error)
}

// HistoryWriter persists completed translations.
type HistoryWriter interface {
	Insert(ctx context.Context, original, translated []byte, filename string, size int64) (*model.TranslationRecord, error)
}

// ProgressFunc receives a snapshot before and after every item.
type ProgressFunc func(model.BatchProgress)

// TranslateService runs items through the provider and records results.
type TranslateService struct {
	provider Transformer
	history  HistoryWriter
}

func NewTranslateService(provider Transformer, history HistoryWriter) *TranslateService {
	return &TranslateService{
		provider: provider,
		history:  history,
	}
}

// Translate processes a single item and returns its stored record.
func (s *TranslateService) Translate(ctx context.Context, item model.BatchItem) (*model.TranslationRecord, error) {
	if len(item.Image) == 0 {
		return nil, model.ErrImageRequired
	}
	return s.process(ctx, item)
}

// TranslateBatch processes items strictly in order. Item failures are
// collected in the report; the returned error is only for input that
// could not start a batch. A cancelled ctx stops the loop before the
// next item and marks the report Canceled; an expired deadline marks it
// TimedOut instead.
func (s *TranslateService) TranslateBatch(ctx context.Context, items []model.BatchItem, onProgress ProgressFunc) (*model.BatchReport, error) {
	if len(items) == 0 {
		return nil, model.ErrEmptyBatch
	}
	for _, item := range items {
		if len(item.Image) == 0 {
			return nil, model.ErrImageRequired
		}
	}

	report := &model.BatchReport{
		Total:   len(items),
		Results: []model.TranslationRecord{},
		Errors:  []string{},
	}

	for i, item := range items {
		if stopped(ctx, report) {
			break
		}

		emit(onProgress, report, item.Label())

		// the snapshot callback may cancel the run
		if stopped(ctx, report) {
			break
		}

		record, err := s.process(ctx, item)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", item.Label(), err))
			slog.Warn("batch item failed", "index", i, "filename", item.Label(), "error", err)
		} else {
			report.Results = append(report.Results, *record)
		}

		report.Completed = i + 1
		emit(onProgress, report, "")
	}

	return report, nil
}

// stopped reports whether ctx is done, recording why on the report.
func stopped(ctx context.Context, report *model.BatchReport) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		report.TimedOut = true
		slog.Warn("batch timed out", "completed", report.Completed, "total", report.Total)
	} else {
		report.Canceled = true
		slog.Info("batch canceled", "completed", report.Completed, "total", report.Total)
	}
	return true
}

func (s *TranslateService) process(ctx context.Context, item model.BatchItem) (*model.TranslationRecord, error) {
	translated, err := s.provider.Transform(ctx, item.Image, item.Mime())
	if err != nil {
		return nil, err
	}

	record, err := s.history.Insert(ctx, item.Image, translated, item.Label(), int64(len(item.Image)))
	if err != nil {
		return nil, err
	}
	return record, nil
}

// emit hands the callback copies so later appends cannot alter a snapshot.
func emit(onProgress ProgressFunc, report *model.BatchReport, current string) {
	if onProgress == nil {
		return
	}
	onProgress(model.BatchProgress{
		Total:     report.Total,
		Completed: report.Completed,
		Current:   current,
		Results:   append(make([]model.TranslationRecord, 0, len(report.Results)), report.Results...),
		Errors:    append(make([]string, 0, len(report.Errors)), report.Errors...),
	})
}
