package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/models"
	"gorm.io/gorm"
)

// BatchRepository defines the interface for batch data access.
// Every method is scoped to a single company.
type BatchRepository interface {
	FindByID(ctx context.Context, companyID string, id uuid.UUID) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, companyID string, id uuid.UUID) error
	List(ctx context.Context, query *BatchQuery) ([]models.Batch, int64, error)
	Stats(ctx context.Context, query *BatchQuery) ([]StatusStats, error)
	MaxNumberSuffix(ctx context.Context, companyID, prefix string) (int64, error)
}

// BatchQuery filters batches. Zero values mean "no filter".
type BatchQuery struct {
	ListQuery
	CompanyID   string
	Status      string
	ProcessType string
	StartDate   *time.Time
	EndDate     *time.Time
}

// StatusStats is one row of the per-status aggregation
type StatusStats struct {
	Status          string  `json:"status"`
	Count           int64   `json:"count"`
	EfficiencySum   float64 `json:"efficiency_sum"`
	DowntimeMinutes int64   `json:"downtime_minutes"`
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) FindByID(ctx context.Context, companyID string, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepository) Create(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Update writes every column of batch if the stored version still matches
// batch.Version, then bumps the version.
func (r *batchRepository) Update(ctx context.Context, batch *models.Batch) error {
	expected := batch.Version
	batch.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(batch).
		Select("*").
		Omit("id", "company_id", "batch_number", "created_at", "created_by").
		Where("company_id = ? AND version = ?", batch.CompanyID, expected).
		Updates(batch)
	if result.Error != nil {
		batch.Version = expected
		return result.Error
	}
	if result.RowsAffected == 0 {
		batch.Version = expected
		return ErrVersionConflict
	}
	return nil
}

func (r *batchRepository) Delete(ctx context.Context, companyID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		Delete(&models.Batch{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *batchRepository) filtered(ctx context.Context, query *BatchQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.Batch{}).
		Where("company_id = ?", query.CompanyID)

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.ProcessType != "" {
		db = db.Where("process_type = ?", query.ProcessType)
	}
	if query.StartDate != nil {
		db = db.Where("created_at >= ?", *query.StartDate)
	}
	if query.EndDate != nil {
		db = db.Where("created_at <= ?", *query.EndDate)
	}
	return db
}

func (r *batchRepository) List(ctx context.Context, query *BatchQuery) ([]models.Batch, int64, error) {
	var batches []models.Batch
	var total int64

	db := r.filtered(ctx, query)

	// Count total using a separate session so the main query is not altered by Count()
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// id breaks ties so pages stay stable across identical created_at values
	db = db.Order("created_at DESC").Order("id DESC")
	if query.Limit > 0 {
		db = db.Offset(query.Offset()).Limit(query.Limit)
	}

	if err := db.Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *batchRepository) Stats(ctx context.Context, query *BatchQuery) ([]StatusStats, error) {
	var rows []StatusStats
	err := r.filtered(ctx, query).
		Select("status, COUNT(*) AS count, COALESCE(SUM(efficiency), 0) AS efficiency_sum, COALESCE(SUM(timing_downtime_minutes), 0) AS downtime_minutes").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// MaxNumberSuffix returns the highest numeric suffix among companyID's batch
// numbers starting with prefix, or 0 when there are none.
func (r *batchRepository) MaxNumberSuffix(ctx context.Context, companyID, prefix string) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).Model(&models.Batch{}).
		Select("COALESCE(MAX(CAST(SUBSTRING(batch_number FROM ?) AS INTEGER)), 0)", len(prefix)+1).
		Where("company_id = ? AND batch_number LIKE ?", companyID, prefix+"%").
		Scan(&max).Error
	return max, err
}
