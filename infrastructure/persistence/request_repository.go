package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRepository implements persistence.RequestRepository
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *gorm.DB) persistence.RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request record together with its metrics row, if any
func (r *RequestRepository) Create(ctx context.Context, entity *persistence.RequestRecord) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create request record: %w", err)
	}
	return nil
}

// FindByIDWithRelations finds a request record with its metrics
func (r *RequestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*persistence.RequestRecord, error) {
	var record persistence.RequestRecord
	if err := r.db.WithContext(ctx).Preload("Metrics").First(&record, "id = ?", id).Error; err != nil {
		return nil, wrapFindError("request record", err)
	}
	return &record, nil
}

// FindRecent returns the newest records first with their metrics; limit <= 0
// means no limit
func (r *RequestRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.RequestRecord, error) {
	var records []*persistence.RequestRecord
	query := r.db.WithContext(ctx).Preload("Metrics").Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent request records: %w", err)
	}
	return records, nil
}

func wrapFindError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, persistence.ErrNotFound)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}
