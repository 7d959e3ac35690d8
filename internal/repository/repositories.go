package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a write loses an optimistic concurrency race.
var ErrVersionConflict = errors.New("record was modified by another request")

// Repositories holds all repository instances
type Repositories struct {
	Batch BatchRepository
	Audit AuditRepository
	Tx    UnitOfWork
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Batch: NewBatchRepository(db),
		Audit: NewAuditRepository(db),
		Tx:    NewUnitOfWork(db),
	}
}

// UnitOfWork runs fn with repositories bound to a single transaction.
// If fn returns an error nothing it wrote is kept.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(batches BatchRepository, audits AuditRepository) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a transaction runner backed by db
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(batches BatchRepository, audits AuditRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewBatchRepository(tx), NewAuditRepository(tx))
	})
}

// ListQuery represents common pagination parameters
type ListQuery struct {
	Page  int
	Limit int
}

// Offset returns the number of rows skipped for the current page
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Pages returns the number of pages needed for total rows
func (q ListQuery) Pages(total int64) int64 {
	if q.Limit <= 0 {
		return 0
	}
	return (total + int64(q.Limit) - 1) / int64(q.Limit)
}
