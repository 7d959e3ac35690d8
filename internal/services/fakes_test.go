package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/weavetrack/erp-api/internal/repository"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the batch and audit tables.
type memStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*models.Batch
	audits  []models.AuditLogEntry

	auditCreateErr error
	batchUpdateErr error
	listErr        error
	// concurrentWrite bumps the stored version right after a read.
	concurrentWrite bool
}

func newMemStore() *memStore {
	return &memStore{batches: map[uuid.UUID]*models.Batch{}}
}

func (s *memStore) batch(id uuid.UUID) *models.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.batches[id]; ok {
		return b.Clone()
	}
	return nil
}

func (s *memStore) put(b *models.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Version == 0 {
		b.Version = 1
	}
	s.batches[b.ID] = b.Clone()
}

func (s *memStore) auditEntries() []models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLogEntry(nil), s.audits...)
}

func (s *memStore) entriesOfType(logType string) []models.AuditLogEntry {
	var out []models.AuditLogEntry
	for _, e := range s.auditEntries() {
		if e.LogType == logType {
			out = append(out, e)
		}
	}
	return out
}

type memBatchRepo struct {
	repository.BatchRepository
	s *memStore
}

func (r *memBatchRepo) FindByID(ctx context.Context, companyID string, id uuid.UUID) (*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || b.CompanyID != companyID {
		return nil, gorm.ErrRecordNotFound
	}
	out := b.Clone()
	if r.s.concurrentWrite {
		b.Version++
	}
	return out, nil
}

func (r *memBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.batches {
		if b.CompanyID == batch.CompanyID && b.BatchNumber == batch.BatchNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	if batch.Version == 0 {
		batch.Version = 1
	}
	r.s.batches[batch.ID] = batch.Clone()
	return nil
}

func (r *memBatchRepo) Update(ctx context.Context, batch *models.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.batchUpdateErr != nil {
		return r.s.batchUpdateErr
	}
	stored, ok := r.s.batches[batch.ID]
	if !ok || stored.CompanyID != batch.CompanyID || stored.Version != batch.Version {
		return repository.ErrVersionConflict
	}
	batch.Version++
	r.s.batches[batch.ID] = batch.Clone()
	return nil
}

func (r *memBatchRepo) Delete(ctx context.Context, companyID string, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || b.CompanyID != companyID {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.batches, id)
	return nil
}

func (r *memBatchRepo) filtered(q *repository.BatchQuery) []models.Batch {
	var out []models.Batch
	for _, b := range r.s.batches {
		if b.CompanyID != q.CompanyID {
			continue
		}
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		if q.ProcessType != "" && b.ProcessType != q.ProcessType {
			continue
		}
		if q.StartDate != nil && b.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && b.CreatedAt.After(*q.EndDate) {
			continue
		}
		out = append(out, *b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (r *memBatchRepo) List(ctx context.Context, q *repository.BatchQuery) ([]models.Batch, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listErr != nil {
		return nil, 0, r.s.listErr
	}
	all := r.filtered(q)
	total := int64(len(all))
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if q.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *memBatchRepo) Stats(ctx context.Context, q *repository.BatchQuery) ([]repository.StatusStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byStatus := map[string]*repository.StatusStats{}
	for _, b := range r.filtered(q) {
		row, ok := byStatus[b.Status]
		if !ok {
			row = &repository.StatusStats{Status: b.Status}
			byStatus[b.Status] = row
		}
		row.Count++
		row.EfficiencySum += b.Efficiency
		row.DowntimeMinutes += int64(b.Timing.DowntimeMinutes)
	}
	var out []repository.StatusStats
	for _, row := range byStatus {
		out = append(out, *row)
	}
	return out, nil
}

func (r *memBatchRepo) MaxNumberSuffix(ctx context.Context, companyID, prefix string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var max int64
	for _, b := range r.s.batches {
		if b.CompanyID != companyID || !strings.HasPrefix(b.BatchNumber, prefix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(b.BatchNumber, prefix), 10, 64)
		if err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

type memAuditRepo struct {
	repository.AuditRepository
	s *memStore
}

func (r *memAuditRepo) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditCreateErr != nil {
		return r.s.auditCreateErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r *memAuditRepo) matches(e models.AuditLogEntry, q *repository.AuditQuery) bool {
	switch {
	case e.CompanyID != q.CompanyID:
		return false
	case q.EntityType != "" && e.EntityType != q.EntityType:
		return false
	case q.EntityID != "" && e.EntityID != q.EntityID:
		return false
	case q.LogType != "" && e.LogType != q.LogType:
		return false
	case !q.IncludeArchived && e.IsArchived:
		return false
	}
	return true
}

func (r *memAuditRepo) FindByEntity(ctx context.Context, q *repository.AuditQuery) ([]models.AuditLogEntry, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLogEntry
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		if r.matches(r.s.audits[i], q) {
			out = append(out, r.s.audits[i])
		}
	}
	total := int64(len(out))
	start := q.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + q.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *memAuditRepo) FindRecent(ctx context.Context, q *repository.AuditQuery, since time.Time) ([]models.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLogEntry
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		e := r.s.audits[i]
		if r.matches(e, q) && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memAuditRepo) FindStatusChanges(ctx context.Context, companyID, entityType, entityID string) ([]models.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range r.s.audits {
		if e.CompanyID == companyID && e.EntityType == entityType && e.EntityID == entityID && e.LogType == models.LogTypeStatusChange {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) Archive(ctx context.Context, companyID string, ids []uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range r.s.audits {
		e := &r.s.audits[i]
		if e.CompanyID == companyID && want[e.ID] && !e.IsArchived {
			e.IsArchived = true
			archivedAt := at
			e.ArchivedAt = &archivedAt
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.audits[:0]
	var n int64
	for _, e := range r.s.audits {
		if e.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.audits = kept
	return n, nil
}

// memUnitOfWork restores the store when fn fails, like a rolled back transaction.
type memUnitOfWork struct {
	s *memStore
}

func (u *memUnitOfWork) Do(ctx context.Context, fn func(batches repository.BatchRepository, audits repository.AuditRepository) error) error {
	u.s.mu.Lock()
	batches := make(map[uuid.UUID]*models.Batch, len(u.s.batches))
	for id, b := range u.s.batches {
		batches[id] = b.Clone()
	}
	audits := append([]models.AuditLogEntry(nil), u.s.audits...)
	u.s.mu.Unlock()

	if err := fn(&memBatchRepo{s: u.s}, &memAuditRepo{s: u.s}); err != nil {
		u.s.mu.Lock()
		u.s.batches = batches
		u.s.audits = audits
		u.s.mu.Unlock()
		return err
	}
	return nil
}

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// clock is a settable time source shared by the services under test.
type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	store      *memStore
	clock      *clock
	batches    *BatchService
	transition *TransitionService
	audit      *AuditService
	export     *ExportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	clk := &clock{t: testNow}
	batchRepo := &memBatchRepo{s: store}
	auditRepo := &memAuditRepo{s: store}
	uow := &memUnitOfWork{s: store}

	numbers := NewBatchNumberGenerator(nil, batchRepo, "PP")
	numbers.now = clk.Now

	batchSvc := NewBatchService(batchRepo, auditRepo, uow, numbers, 10)
	batchSvc.now = clk.Now

	transitionSvc := NewTransitionService(batchRepo, uow)
	transitionSvc.now = clk.Now

	auditSvc := NewAuditService(auditRepo)
	auditSvc.now = clk.Now

	exportSvc := NewExportService(batchSvc)
	exportSvc.now = clk.Now

	return &testEnv{
		store:      store,
		clock:      clk,
		batches:    batchSvc,
		transition: transitionSvc,
		audit:      auditSvc,
		export:     exportSvc,
	}
}

func testCaller(companyID string) Caller {
	return Caller{
		CompanyID: companyID,
		Actor: models.Actor{
			UserID: "user-1",
			Name:   "Asha Operator",
			Email:  "asha@example.com",
			Role:   "operator",
		},
		Request: models.RequestInfo{
			IPAddress: "10.0.0.7",
			UserAgent: "test",
			SessionID: "sess-1",
			Method:    "PATCH",
			URL:       "/api/v1/pre-processing",
		},
	}
}

// createBatch opens a pending batch for companyID through the service.
func (e *testEnv) createBatch(t *testing.T, companyID string) *models.Batch {
	t.Helper()
	batch, err := e.batches.Create(context.Background(), testCaller(companyID), CreateBatchInput{
		ProcessType: models.ProcessTypeScouring,
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

// move transitions a batch and fails the test on error.
func (e *testEnv) move(t *testing.T, companyID string, id uuid.UUID, status, reason string) *models.Batch {
	t.Helper()
	batch, err := e.transition.Transition(context.Background(), TransitionCommand{
		Caller:  testCaller(companyID),
		BatchID: id,
		Status:  status,
		Reason:  reason,
	})
	if err != nil {
		t.Fatalf("transition to %s: %v", status, err)
	}
	return batch
}
