package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weavetrack/erp-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestBatchRepository_UpdateDetectsVersionConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBatchRepository(db)
	batch := &models.Batch{ID: uuid.New(), CompanyID: "c-1", Status: models.BatchStatusInProgress, Version: 3}

	mock.ExpectExec(`UPDATE "pre_processing_batches" SET .* WHERE .*version = .*`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), batch)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 3, batch.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepository_UpdateBumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBatchRepository(db)
	batch := &models.Batch{ID: uuid.New(), CompanyID: "c-1", Status: models.BatchStatusCompleted, Version: 3}

	mock.ExpectExec(`UPDATE "pre_processing_batches" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), batch))
	assert.Equal(t, 4, batch.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepository_FindByIDScopedToCompany(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBatchRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "pre_processing_batches" WHERE company_id = \$1 AND id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "c-2", id)

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepository_DeleteMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBatchRepository(db)

	mock.ExpectExec(`DELETE FROM "pre_processing_batches" WHERE company_id = \$1 AND id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "c-1", uuid.New())

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepository_MaxNumberSuffix(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBatchRepository(db)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(CAST\(SUBSTRING\(batch_number FROM \$1\) AS INTEGER\)\), 0\) FROM "pre_processing_batches" WHERE company_id = \$2 AND batch_number LIKE \$3`).
		WithArgs(13, "c-1", "PP-20261015-%").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))

	n, err := repo.MaxNumberSuffix(context.Background(), "c-1", "PP-20261015-")

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_FindByEntityNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "audit_log_entries" WHERE company_id = \$1 AND entity_id = \$2 AND is_archived = \$3`).
		WithArgs("c-1", "b-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "audit_log_entries" WHERE .* ORDER BY logged_at DESC,id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "logged_at", "entity_type", "entity_id", "log_type"}).
			AddRow(uuid.NewString(), "c-1", now, models.EntityTypeBatch, "b-1", models.LogTypeStatusChange).
			AddRow(uuid.NewString(), "c-1", now.Add(-time.Hour), models.EntityTypeBatch, "b-1", models.LogTypeBatchCreated))

	entries, total, err := repo.FindByEntity(context.Background(), &AuditQuery{
		ListQuery: ListQuery{Page: 1, Limit: 1},
		CompanyID: "c-1",
		EntityID:  "b-1",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogTypeStatusChange, entries[0].LogType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Archive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)

	n, err := repo.Archive(context.Background(), "c-1", nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`UPDATE "audit_log_entries" SET .*"archived_at"=.*"is_archived"=.* WHERE company_id = .* AND id IN .* AND is_archived = `).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err = repo.Archive(context.Background(), "c-1", []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_DeleteOlderThan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	cutoff := time.Date(2026, 7, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM "audit_log_entries" WHERE logged_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogEntry_RejectsInPlaceUpdates(t *testing.T) {
	db, mock := newMockDB(t)
	entry := &models.AuditLogEntry{ID: uuid.New(), CompanyID: "c-1"}

	err := db.Save(entry).Error

	assert.ErrorIs(t, err, models.ErrAuditImmutable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
