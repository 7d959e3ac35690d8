package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/models"
	"gorm.io/gorm"
)

// AuditRepository is the append-only store of audit entries.
// Entries are never updated in place; Archive only flips a flag.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	FindByEntity(ctx context.Context, query *AuditQuery) ([]models.AuditLogEntry, int64, error)
	FindRecent(ctx context.Context, query *AuditQuery, since time.Time) ([]models.AuditLogEntry, error)
	FindStatusChanges(ctx context.Context, companyID, entityType, entityID string) ([]models.AuditLogEntry, error)
	Archive(ctx context.Context, companyID string, ids []uuid.UUID, at time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditQuery filters audit entries
type AuditQuery struct {
	ListQuery
	CompanyID       string
	EntityType      string
	EntityID        string
	LogType         string
	IncludeArchived bool
	From            *time.Time
	To              *time.Time
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) filtered(ctx context.Context, query *AuditQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("company_id = ?", query.CompanyID)

	if query.EntityType != "" {
		db = db.Where("entity_type = ?", query.EntityType)
	}
	if query.EntityID != "" {
		db = db.Where("entity_id = ?", query.EntityID)
	}
	if query.LogType != "" {
		db = db.Where("log_type = ?", query.LogType)
	}
	if !query.IncludeArchived {
		db = db.Where("is_archived = ?", false)
	}
	if query.From != nil {
		db = db.Where("logged_at >= ?", *query.From)
	}
	if query.To != nil {
		db = db.Where("logged_at <= ?", *query.To)
	}
	return db
}

func (r *auditRepository) FindByEntity(ctx context.Context, query *AuditQuery) ([]models.AuditLogEntry, int64, error) {
	var entries []models.AuditLogEntry
	var total int64

	db := r.filtered(ctx, query)
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order("logged_at DESC").Order("id DESC")
	if query.Limit > 0 {
		db = db.Offset(query.Offset()).Limit(query.Limit)
	}
	if err := db.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *auditRepository) FindRecent(ctx context.Context, query *AuditQuery, since time.Time) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	db := r.filtered(ctx, query).
		Where("logged_at >= ?", since).
		Order("logged_at DESC").Order("id DESC")
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	err := db.Find(&entries).Error
	return entries, err
}

// FindStatusChanges returns every status_change entry for an entity, oldest first,
// archived ones included.
func (r *auditRepository) FindStatusChanges(ctx context.Context, companyID, entityType, entityID string) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND entity_id = ? AND log_type = ?",
			companyID, entityType, entityID, models.LogTypeStatusChange).
		Order("logged_at ASC").Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// Archive flips is_archived. UpdateColumns skips the immutability hook.
func (r *auditRepository) Archive(ctx context.Context, companyID string, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.AuditLogEntry{}).
		Where("company_id = ? AND id IN ? AND is_archived = ?", companyID, ids, false).
		UpdateColumns(map[string]interface{}{
			"is_archived": true,
			"archived_at": at,
		})
	return result.RowsAffected, result.Error
}

// DeleteOlderThan physically removes entries past the retention window, across all companies.
func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("logged_at < ?", cutoff).
		Delete(&models.AuditLogEntry{})
	return result.RowsAffected, result.Error
}
