package repository

import (
	"context"
	"errors"
	"time"

	"audioportal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AudioRepository is the Record Store for uploaded audio.
// Lookups return (nil, nil) when no record matches.
type AudioRepository interface {
	Create(ctx context.Context, record *model.AudioRecord) error
	GetByID(ctx context.Context, id string) (*model.AudioRecord, error)
	List(ctx context.Context) ([]*model.AudioRecord, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]*model.AudioRecord, error)
	UpdateStatus(ctx context.Context, id, status, lastError string) error
	// ReplaceMetadata overwrites the whole metadata object and returns the updated record.
	ReplaceMetadata(ctx context.Context, id string, meta *model.Metadata) (*model.AudioRecord, error)
}

// gormAudioRepository GORM 实现
type gormAudioRepository struct {
	db *gorm.DB
}

// NewGormAudioRepository creates the GORM-backed record store.
func NewGormAudioRepository(db *gorm.DB) AudioRepository {
	return &gormAudioRepository{db: db}
}

// Create assigns the id and upload timestamp and inserts the record.
func (r *gormAudioRepository) Create(ctx context.Context, record *model.AudioRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.UploadTimestamp.IsZero() {
		record.UploadTimestamp = time.Now()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormAudioRepository) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	var record model.AudioRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// List returns every record, newest upload first.
func (r *gormAudioRepository) List(ctx context.Context) ([]*model.AudioRecord, error) {
	records := make([]*model.AudioRecord, 0)
	err := r.db.WithContext(ctx).
		Order("upload_timestamp DESC").
		Find(&records).Error
	return records, err
}

func (r *gormAudioRepository) ListByStatus(ctx context.Context, statuses ...string) ([]*model.AudioRecord, error) {
	records := make([]*model.AudioRecord, 0)
	if len(statuses) == 0 {
		return records, nil
	}
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("upload_timestamp ASC").
		Find(&records).Error
	return records, err
}

func (r *gormAudioRepository) UpdateStatus(ctx context.Context, id, status, lastError string) error {
	return r.db.WithContext(ctx).Model(&model.AudioRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormAudioRepository) ReplaceMetadata(ctx context.Context, id string, meta *model.Metadata) (*model.AudioRecord, error) {
	var updated *model.AudioRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record model.AudioRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			return err
		}

		record.Metadata = meta
		if err := tx.Model(&record).Select("metadata").Updates(&record).Error; err != nil {
			return err
		}
		updated = &record
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}
