package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/metrics"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/pkg/logger"
)

const (
	defaultAuditLimit  = 50
	maxAuditLimit      = 100
	defaultRecentHours = 24
	maxRecentHours     = 24 * 30
)

// AuditService is the append-only store of who changed what, when and why.
type AuditService struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

// AuditFilter narrows audit queries. CompanyID is mandatory.
type AuditFilter struct {
	CompanyID       string
	EntityType      string
	EntityID        string
	LogType         string
	IncludeArchived bool
	From            *time.Time
	To              *time.Time
	Page            int
	Limit           int
}

func (f AuditFilter) query() (*repository.AuditQuery, error) {
	ve := &ValidationError{}
	if f.CompanyID == "" {
		ve.Add("company_id", "is required")
	}
	if f.LogType != "" && !models.IsValidLogType(f.LogType) {
		ve.Add("log_type", "is not a known log type")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		ve.Add("to", "must not be before from")
	}

	limit := f.Limit
	if limit == 0 {
		limit = defaultAuditLimit
	}
	if limit < 1 || limit > maxAuditLimit {
		ve.Add("limit", fmt.Sprintf("must be between 1 and %d", maxAuditLimit))
	}
	page := f.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		ve.Add("page", "must be positive")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	return &repository.AuditQuery{
		ListQuery:       repository.ListQuery{Page: page, Limit: limit},
		CompanyID:       f.CompanyID,
		EntityType:      f.EntityType,
		EntityID:        f.EntityID,
		LogType:         f.LogType,
		IncludeArchived: f.IncludeArchived,
		From:            f.From,
		To:              f.To,
	}, nil
}

// validateEntry checks the fields every audit entry must carry.
func validateEntry(entry *models.AuditLogEntry) error {
	ve := &ValidationError{}
	if entry.CompanyID == "" {
		ve.Add("company_id", "is required")
	}
	if entry.EntityType == "" {
		ve.Add("entity_type", "is required")
	}
	if entry.EntityID == "" {
		ve.Add("entity_id", "is required")
	}
	if !models.IsValidLogType(entry.LogType) {
		ve.Add("log_type", "is not a known log type")
	}
	if entry.Actor.UserID == "" {
		ve.Add("actor.user_id", "is required")
	}
	if entry.LogType == models.LogTypeStatusChange && entry.StatusChange == nil {
		ve.Add("status_change", "is required for status_change entries")
	}
	if entry.LogType != models.LogTypeStatusChange && entry.StatusChange != nil {
		ve.Add("status_change", "is only allowed on status_change entries")
	}
	return ve.OrNil()
}

// Append stores entry, assigning its id and timestamp when unset.
func (s *AuditService) Append(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		logger.Error("Failed to append audit entry",
			"company_id", entry.CompanyID,
			"entity_id", entry.EntityID,
			"log_type", entry.LogType,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return entry, nil
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Items []models.AuditLogEntry
	Total int64
	Pages int64
	Page  int
}

// QueryByEntity returns entries for one entity, newest first.
func (s *AuditService) QueryByEntity(ctx context.Context, filter AuditFilter) (*AuditPage, error) {
	if filter.EntityType == "" {
		filter.EntityType = models.EntityTypeBatch
	}
	if filter.EntityID == "" {
		return nil, NewValidationError("entity_id", "is required")
	}

	query, err := filter.query()
	if err != nil {
		return nil, err
	}

	entries, total, err := s.repo.FindByEntity(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	return &AuditPage{
		Items: entries,
		Total: total,
		Pages: query.Pages(total),
		Page:  query.Page,
	}, nil
}

// QueryRecent returns entries logged in the last windowHours, newest first.
func (s *AuditService) QueryRecent(ctx context.Context, filter AuditFilter, windowHours int) ([]models.AuditLogEntry, error) {
	if windowHours == 0 {
		windowHours = defaultRecentHours
	}
	if windowHours < 1 || windowHours > maxRecentHours {
		return nil, NewValidationError("hours", fmt.Sprintf("must be between 1 and %d", maxRecentHours))
	}

	query, err := filter.query()
	if err != nil {
		return nil, err
	}

	since := s.now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	entries, err := s.repo.FindRecent(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entries, nil
}

// Archive flags entries as archived. Already archived or foreign ids are skipped.
func (s *AuditService) Archive(ctx context.Context, companyID string, ids []uuid.UUID) (int64, error) {
	if companyID == "" {
		return 0, NewValidationError("company_id", "is required")
	}
	if len(ids) == 0 {
		return 0, NewValidationError("ids", "at least one id is required")
	}

	archived, err := s.repo.Archive(ctx, companyID, ids, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.Info("Audit entries archived", "company_id", companyID, "requested", len(ids), "archived", archived)
	return archived, nil
}

// PurgeExpired deletes entries older than retentionDays across all companies.
func (s *AuditService) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, NewValidationError("retention_days", "must be at least 1")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	metrics.AuditEntriesPurged.Add(float64(deleted))
	logger.Info("Expired audit entries purged", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}
