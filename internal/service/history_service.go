package service

import (
	"context"
	"errors"

	"github.com/imgtranslate/api/internal/model"
	"github.com/imgtranslate/api/internal/storage"
)

// HistoryRepository is the storage behind HistoryService.
type HistoryRepository interface {
	GetByID(ctx context.Context, id int64) (*model.TranslationRecord, error)
	List(ctx context.Context, limit, offset int) ([]model.TranslationRecord, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// HistoryService exposes read and delete operations on past translations
type HistoryService struct {
	repo HistoryRepository
}

func NewHistoryService(repo HistoryRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

// List returns records newest first.
func (s *HistoryService) List(ctx context.Context, limit, offset int) ([]model.TranslationRecord, error) {
	return s.repo.List(ctx, limit, offset)
}

// Get returns one record or storage.ErrNotFound.
func (s *HistoryService) Get(ctx context.Context, id int64) (*model.TranslationRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMany returns the records that still exist, in the order of ids.
func (s *HistoryService) GetMany(ctx context.Context, ids []int64) ([]model.TranslationRecord, error) {
	records := make([]model.TranslationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Delete removes one record. Deleted is false when it did not exist.
func (s *HistoryService) Delete(ctx context.Context, id int64) (*model.HistoryDeleteResponse, error) {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.HistoryDeleteResponse{Deleted: deleted, ID: id}, nil
}

// Clear removes every record.
func (s *HistoryService) Clear(ctx context.Context) (*model.HistoryClearResponse, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return nil, err
	}
	return &model.HistoryClearResponse{DeletedCount: n}, nil
}
