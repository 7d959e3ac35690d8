package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxPageSize = 100

// BatchService handles batch lifecycle apart from status transitions.
type BatchService struct {
	batches      repository.BatchRepository
	audits       repository.AuditRepository
	uow          repository.UnitOfWork
	numbers      *BatchNumberGenerator
	defaultLimit int
	now          func() time.Time
}

func NewBatchService(batches repository.BatchRepository, audits repository.AuditRepository, uow repository.UnitOfWork, numbers *BatchNumberGenerator, defaultLimit int) *BatchService {
	if defaultLimit < 1 || defaultLimit > maxPageSize {
		defaultLimit = 10
	}
	return &BatchService{
		batches:      batches,
		audits:       audits,
		uow:          uow,
		numbers:      numbers,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// loadBatch fetches a batch in tenant scope. Batches of other companies
// are reported exactly like missing ones.
func loadBatch(ctx context.Context, repo repository.BatchRepository, companyID string, id uuid.UUID) (*models.Batch, error) {
	batch, err := repo.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return batch, nil
}

// maxNumberAttempts bounds how often Create draws a new batch number after a
// unique index violation.
const maxNumberAttempts = 3

// writeError maps an error returned from a unit of work.
func writeError(op string, batchID uuid.UUID, caller Caller, err error) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	}

	logger.Error("Batch write failed",
		"op", op,
		"batch_id", batchID,
		"company_id", caller.CompanyID,
		"actor", caller.Actor.UserID,
		"error", err)
	if errors.Is(err, ErrAuditWrite) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// persist writes batch through write and appends entry in one transaction.
func (s *BatchService) persist(ctx context.Context, entry *models.AuditLogEntry, write func(repository.BatchRepository) error) error {
	return s.uow.Do(ctx, func(batches repository.BatchRepository, audits repository.AuditRepository) error {
		if err := write(batches); err != nil {
			return err
		}
		if err := audits.Create(ctx, entry); err != nil {
			return fmt.Errorf("%w: %v", ErrAuditWrite, err)
		}
		return nil
	})
}

// CreateBatchInput holds the fields accepted when opening a batch.
type CreateBatchInput struct {
	ProcessType       string
	ProductionOrderID *uuid.UUID
	InwardID          *uuid.UUID
	PlannedStartTime  *time.Time
	PlannedEndTime    *time.Time
	InputMaterials    []models.InputMaterial
	ProcessParameters []models.ProcessParameter
	CostBreakdown     []models.CostItem
	Notes             string
}

// Create opens a new batch in pending status.
func (s *BatchService) Create(ctx context.Context, caller Caller, in CreateBatchInput) (*models.Batch, error) {
	ve := &ValidationError{}
	caller.validate(ve)
	if !models.IsValidProcessType(in.ProcessType) {
		ve.Add("process_type", "must be one of: "+strings.Join(models.ProcessTypes, ", "))
	}
	validatePlanned(ve, in.PlannedStartTime, in.PlannedEndTime)
	for i, m := range in.InputMaterials {
		validateMaterial(ve, fmt.Sprintf("input_materials[%d]", i), m)
	}
	validateCosts(ve, in.CostBreakdown)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	materials := make([]models.InputMaterial, len(in.InputMaterials))
	for i, m := range in.InputMaterials {
		if m.AddedAt.IsZero() {
			m.AddedAt = now
		}
		if m.AddedBy == "" {
			m.AddedBy = caller.Actor.UserID
		}
		materials[i] = m
	}

	batch := &models.Batch{
		ID:                uuid.New(),
		CompanyID:         caller.CompanyID,
		ProductionOrderID: in.ProductionOrderID,
		InwardID:          in.InwardID,
		ProcessType:       in.ProcessType,
		Status:            models.BatchStatusPending,
		Progress:          0,
		Timing: models.BatchTiming{
			PlannedStartTime: in.PlannedStartTime,
			PlannedEndTime:   in.PlannedEndTime,
		},
		InputMaterials:    materials,
		ProcessParameters: in.ProcessParameters,
		CostBreakdown:     in.CostBreakdown,
		Version:           1,
		CreatedBy:         caller.Actor.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if note := strings.TrimSpace(in.Notes); note != "" {
		batch.AppendNote(now, note)
	}

	// A number can already be taken when another request won the race for it.
	var err error
	for attempt := 1; ; attempt++ {
		if batch.BatchNumber, err = s.numbers.Next(ctx, caller.CompanyID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		entry := newBatchEntry(caller, batch, models.LogTypeBatchCreated, now, datatypes.JSONMap{
			"batch_number": batch.BatchNumber,
			"process_type": batch.ProcessType,
		})

		err = s.persist(ctx, entry, func(batches repository.BatchRepository) error {
			return batches.Create(ctx, batch)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == maxNumberAttempts {
			return nil, writeError("create", batch.ID, caller, err)
		}
		logger.Warn("Batch number taken, retrying", "batch_number", batch.BatchNumber, "company_id", caller.CompanyID)
	}

	logger.Info("Batch created", "batch_id", batch.ID, "batch_number", batch.BatchNumber, "company_id", batch.CompanyID)
	return batch, nil
}

// Get returns one batch of companyID.
func (s *BatchService) Get(ctx context.Context, companyID string, id uuid.UUID) (*models.Batch, error) {
	if companyID == "" {
		return nil, NewValidationError("company_id", "is required")
	}
	return loadBatch(ctx, s.batches, companyID, id)
}

// UpdateBatchInput carries a partial update. Nil fields are left alone.
// Status is not updatable here; use TransitionService.
type UpdateBatchInput struct {
	Version           *int
	ProcessType       *string
	Progress          *int
	Efficiency        *float64
	PlannedStartTime  *time.Time
	PlannedEndTime    *time.Time
	ProcessParameters *[]models.ProcessParameter
	CostBreakdown     *[]models.CostItem
	Note              *string
}

// Update applies a field-level change to a batch.
func (s *BatchService) Update(ctx context.Context, caller Caller, id uuid.UUID, in UpdateBatchInput) (*models.Batch, error) {
	ve := &ValidationError{}
	caller.validate(ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	current, err := loadBatch(ctx, s.batches, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if in.Version != nil && *in.Version != current.Version {
		return nil, ErrConflict
	}

	now := s.now().UTC()
	updated := current.Clone()
	var changed []string

	if in.ProcessType != nil {
		if !models.IsValidProcessType(*in.ProcessType) {
			ve.Add("process_type", "must be one of: "+strings.Join(models.ProcessTypes, ", "))
		}
		updated.ProcessType = *in.ProcessType
		changed = append(changed, "process_type")
	}
	if in.Progress != nil {
		p := *in.Progress
		switch {
		case p < 0 || p > 100:
			ve.Add("progress", "must be between 0 and 100")
		case current.IsCompleted() && p != 100:
			ve.Add("progress", "must stay 100 while the batch is completed")
		case !current.IsCompleted() && p == 100:
			ve.Add("progress", "reaches 100 only by completing the batch")
		}
		updated.Progress = p
		changed = append(changed, "progress")
	}
	if in.Efficiency != nil {
		if *in.Efficiency < 0 || *in.Efficiency > 100 {
			ve.Add("efficiency", "must be between 0 and 100")
		}
		updated.Efficiency = *in.Efficiency
		changed = append(changed, "efficiency")
	}
	if in.PlannedStartTime != nil {
		updated.Timing.PlannedStartTime = in.PlannedStartTime
		changed = append(changed, "planned_start_time")
	}
	if in.PlannedEndTime != nil {
		updated.Timing.PlannedEndTime = in.PlannedEndTime
		changed = append(changed, "planned_end_time")
	}
	validatePlanned(ve, updated.Timing.PlannedStartTime, updated.Timing.PlannedEndTime)
	if in.ProcessParameters != nil {
		updated.ProcessParameters = *in.ProcessParameters
		changed = append(changed, "process_parameters")
	}
	if in.CostBreakdown != nil {
		validateCosts(ve, *in.CostBreakdown)
		updated.CostBreakdown = *in.CostBreakdown
		changed = append(changed, "cost_breakdown")
	}
	if in.Note != nil && strings.TrimSpace(*in.Note) != "" {
		updated.AppendNote(now, *in.Note)
		changed = append(changed, "notes")
	}
	if len(changed) == 0 {
		ve.Add("body", "no updatable fields supplied")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	updated.UpdatedAt = now
	entry := newBatchEntry(caller, updated, models.LogTypeBatchUpdated, now, datatypes.JSONMap{
		"fields": changed,
	})

	err = s.persist(ctx, entry, func(batches repository.BatchRepository) error {
		return batches.Update(ctx, updated)
	})
	if err != nil {
		return nil, writeError("update", id, caller, err)
	}
	return updated, nil
}

// QualityCheckInput is one inspection result to record.
type QualityCheckInput struct {
	Parameter string
	Expected  string
	Actual    string
	Result    string
	Remarks   string
}

// AddQualityCheck records an inspection on a batch.
func (s *BatchService) AddQualityCheck(ctx context.Context, caller Caller, id uuid.UUID, in QualityCheckInput) (*models.Batch, error) {
	ve := &ValidationError{}
	caller.validate(ve)
	if strings.TrimSpace(in.Parameter) == "" {
		ve.Add("parameter", "is required")
	}
	if strings.TrimSpace(in.Actual) == "" {
		ve.Add("actual", "is required")
	}
	if in.Result != models.QualityResultPass && in.Result != models.QualityResultFail {
		ve.Add("result", "must be pass or fail")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	current, err := loadBatch(ctx, s.batches, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BatchStatusCancelled {
		return nil, NewValidationError("status", "cannot record quality checks on a cancelled batch")
	}

	now := s.now().UTC()
	updated := current.Clone()
	updated.QualityChecks = append(updated.QualityChecks, models.QualityCheck{
		Parameter: strings.TrimSpace(in.Parameter),
		Expected:  in.Expected,
		Actual:    in.Actual,
		Result:    in.Result,
		Remarks:   in.Remarks,
		CheckedBy: caller.Actor.UserID,
		CheckedAt: now,
	})
	updated.UpdatedAt = now

	entry := newBatchEntry(caller, updated, models.LogTypeQualityCheck, now, datatypes.JSONMap{
		"parameter": in.Parameter,
		"result":    in.Result,
	})

	err = s.persist(ctx, entry, func(batches repository.BatchRepository) error {
		return batches.Update(ctx, updated)
	})
	if err != nil {
		return nil, writeError("quality_check", id, caller, err)
	}
	return updated, nil
}

// InputMaterialInput is a material lot consumed by a batch.
type InputMaterialInput struct {
	MaterialID   string
	MaterialName string
	LotNumber    string
	Quantity     decimal.Decimal
	Unit         string
}

// AddInputMaterial records material consumption on an open batch.
func (s *BatchService) AddInputMaterial(ctx context.Context, caller Caller, id uuid.UUID, in InputMaterialInput) (*models.Batch, error) {
	material := models.InputMaterial{
		MaterialID:   strings.TrimSpace(in.MaterialID),
		MaterialName: strings.TrimSpace(in.MaterialName),
		LotNumber:    in.LotNumber,
		Quantity:     in.Quantity,
		Unit:         strings.TrimSpace(in.Unit),
	}

	ve := &ValidationError{}
	caller.validate(ve)
	validateMaterial(ve, "material", material)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	current, err := loadBatch(ctx, s.batches, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BatchStatusCompleted || current.Status == models.BatchStatusCancelled {
		return nil, NewValidationError("status", "materials cannot be added to a "+current.Status+" batch")
	}

	now := s.now().UTC()
	material.AddedAt = now
	material.AddedBy = caller.Actor.UserID

	updated := current.Clone()
	updated.InputMaterials = append(updated.InputMaterials, material)
	updated.UpdatedAt = now

	entry := newBatchEntry(caller, updated, models.LogTypeMaterialInput, now, datatypes.JSONMap{
		"material_id": material.MaterialID,
		"quantity":    material.Quantity.String(),
		"unit":        material.Unit,
	})

	err = s.persist(ctx, entry, func(batches repository.BatchRepository) error {
		return batches.Update(ctx, updated)
	})
	if err != nil {
		return nil, writeError("material_input", id, caller, err)
	}
	return updated, nil
}

// Delete removes a batch for good. Its audit history is kept.
func (s *BatchService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	ve := &ValidationError{}
	caller.validate(ve)
	if err := ve.OrNil(); err != nil {
		return err
	}

	current, err := loadBatch(ctx, s.batches, caller.CompanyID, id)
	if err != nil {
		return err
	}

	entry := newBatchEntry(caller, current, models.LogTypeBatchDeleted, s.now().UTC(), datatypes.JSONMap{
		"batch_number": current.BatchNumber,
		"status":       current.Status,
	})

	err = s.persist(ctx, entry, func(batches repository.BatchRepository) error {
		return batches.Delete(ctx, caller.CompanyID, id)
	})
	if err != nil {
		return writeError("delete", id, caller, err)
	}

	logger.Info("Batch deleted", "batch_id", id, "company_id", caller.CompanyID, "actor", caller.Actor.UserID)
	return nil
}

// BatchFilter selects batches for listing, analytics and export.
type BatchFilter struct {
	CompanyID   string
	Status      string
	ProcessType string
	StartDate   *time.Time
	EndDate     *time.Time
	Page        int
	Limit       int
}

// BatchPage is one page of a batch listing.
type BatchPage struct {
	Items []models.Batch
	Total int64
	Pages int64
	Page  int
	Limit int
}

func (s *BatchService) query(f BatchFilter, paged bool) (*repository.BatchQuery, error) {
	ve := &ValidationError{}
	if f.CompanyID == "" {
		ve.Add("company_id", "is required")
	}
	if f.Status != "" && !models.IsValidBatchStatus(f.Status) {
		ve.Add("status", "must be one of: "+strings.Join(models.BatchStatuses, ", "))
	}
	if f.ProcessType != "" && !models.IsValidProcessType(f.ProcessType) {
		ve.Add("process_type", "must be one of: "+strings.Join(models.ProcessTypes, ", "))
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		ve.Add("end_date", "must not be before start_date")
	}

	q := &repository.BatchQuery{
		CompanyID:   f.CompanyID,
		Status:      f.Status,
		ProcessType: f.ProcessType,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
	}
	if paged {
		limit := f.Limit
		if limit == 0 {
			limit = s.defaultLimit
		}
		if limit < 1 || limit > maxPageSize {
			ve.Add("limit", fmt.Sprintf("must be between 1 and %d", maxPageSize))
		}
		page := f.Page
		if page == 0 {
			page = 1
		}
		if page < 1 {
			ve.Add("page", "must be positive")
		}
		q.ListQuery = repository.ListQuery{Page: page, Limit: limit}
	}
	return q, ve.OrNil()
}

// List returns one page of batches, newest first.
func (s *BatchService) List(ctx context.Context, filter BatchFilter) (*BatchPage, error) {
	q, err := s.query(filter, true)
	if err != nil {
		return nil, err
	}

	items, total, err := s.batches.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if items == nil {
		items = []models.Batch{}
	}

	return &BatchPage{
		Items: items,
		Total: total,
		Pages: q.Pages(total),
		Page:  q.Page,
		Limit: q.Limit,
	}, nil
}

// Analytics aggregates the filtered batches. Paging fields of filter are ignored.
func (s *BatchService) Analytics(ctx context.Context, filter BatchFilter) (*models.BatchAnalytics, error) {
	q, err := s.query(filter, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.batches.Stats(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	out := models.NewBatchAnalytics()
	var completedEfficiency float64
	for _, row := range rows {
		out.StatusCounts[row.Status] += row.Count
		out.TotalBatches += row.Count
		out.TotalDowntimeMinutes += row.DowntimeMinutes
		if row.Status == models.BatchStatusCompleted {
			completedEfficiency += row.EfficiencySum
		}
	}

	completed := out.StatusCounts[models.BatchStatusCompleted]
	if out.TotalBatches > 0 {
		out.CompletionRate = round1(float64(completed) / float64(out.TotalBatches) * 100)
	}
	if completed > 0 {
		out.AverageEfficiency = round1(completedEfficiency / float64(completed))
	}
	out.InProgress = out.StatusCounts[models.BatchStatusInProgress]
	out.OnHold = out.StatusCounts[models.BatchStatusOnHold] + out.StatusCounts[models.BatchStatusQualityHold]
	return out, nil
}

// RebuildStatusLog replaces a batch's status change log with the entries held
// in the audit log, which is authoritative.
func (s *BatchService) RebuildStatusLog(ctx context.Context, companyID string, id uuid.UUID) (*models.Batch, error) {
	current, err := loadBatch(ctx, s.batches, companyID, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.audits.FindStatusChanges(ctx, companyID, models.EntityTypeBatch, id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	log := make([]models.StatusChangeLogItem, 0, len(entries))
	for i := range entries {
		log = append(log, entries[i].LogItem())
	}

	updated := current.Clone()
	updated.StatusChangeLog = log
	updated.UpdatedAt = s.now().UTC()

	err = s.uow.Do(ctx, func(batches repository.BatchRepository, _ repository.AuditRepository) error {
		return batches.Update(ctx, updated)
	})
	if err != nil {
		return nil, writeError("rebuild_status_log", id, Caller{CompanyID: companyID}, err)
	}

	logger.Info("Batch status log rebuilt",
		"batch_id", id,
		"company_id", companyID,
		"previous", len(current.StatusChangeLog),
		"rebuilt", len(log))
	return updated, nil
}

func validatePlanned(ve *ValidationError, start, end *time.Time) {
	if start != nil && end != nil && end.Before(*start) {
		ve.Add("planned_end_time", "must not be before planned_start_time")
	}
}

func validateMaterial(ve *ValidationError, field string, m models.InputMaterial) {
	if m.MaterialID == "" {
		ve.Add(field+".material_id", "is required")
	}
	if !m.Quantity.IsPositive() {
		ve.Add(field+".quantity", "must be greater than 0")
	}
	if m.Unit == "" {
		ve.Add(field+".unit", "is required")
	}
}

func validateCosts(ve *ValidationError, items []models.CostItem) {
	for i, item := range items {
		field := fmt.Sprintf("cost_breakdown[%d]", i)
		if item.Category == "" {
			ve.Add(field+".category", "is required")
		}
		if item.Amount.IsNegative() {
			ve.Add(field+".amount", "must not be negative")
		}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
