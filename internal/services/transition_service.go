package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/metrics"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/internal/statemachine"
	"github.com/weavetrack/erp-api/pkg/logger"
)

// TransitionCommand asks for a batch to move into Status.
type TransitionCommand struct {
	Caller
	BatchID uuid.UUID
	Status  string
	Reason  string
	Notes   string
}

func (c TransitionCommand) validate() error {
	ve := &ValidationError{}
	c.Caller.validate(ve)
	if c.BatchID == uuid.Nil {
		ve.Add("id", "is required")
	}
	if !models.IsValidBatchStatus(c.Status) {
		ve.Add("status", "must be one of: "+strings.Join(models.BatchStatuses, ", "))
	}
	if strings.TrimSpace(c.Reason) == "" {
		ve.Add("change_reason", "is required")
	}
	return ve.OrNil()
}

// TransitionService moves batches between statuses and records each move
// in the audit log within the same transaction.
type TransitionService struct {
	batches repository.BatchRepository
	uow     repository.UnitOfWork
	now     func() time.Time
}

func NewTransitionService(batches repository.BatchRepository, uow repository.UnitOfWork) *TransitionService {
	return &TransitionService{
		batches: batches,
		uow:     uow,
		now:     time.Now,
	}
}

// Transition applies cmd and returns the updated batch.
func (s *TransitionService) Transition(ctx context.Context, cmd TransitionCommand) (*models.Batch, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	cmd.Reason = strings.TrimSpace(cmd.Reason)
	cmd.Notes = strings.TrimSpace(cmd.Notes)

	current, err := loadBatch(ctx, s.batches, cmd.CompanyID, cmd.BatchID)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if from == cmd.Status {
		return nil, NewValidationError("status", "batch is already "+from)
	}

	now := s.now().UTC()
	updated := current.Clone()
	machine := statemachine.NewBatchFSM(updated, now)
	if !machine.Can(cmd.Status) {
		return nil, NewValidationError("status", "batch cannot move from "+from+" to "+cmd.Status)
	}
	if err := machine.TransitionTo(ctx, cmd.Status); err != nil {
		return nil, NewValidationError("status", err.Error())
	}

	duration := int(now.Sub(current.LastStatusChangeAt()).Minutes())
	if duration < 0 {
		duration = 0
	}

	entry := newBatchEntry(cmd.Caller, current, models.LogTypeStatusChange, now, nil)
	entry.StatusChange = &models.StatusChange{
		FromStatus:      from,
		ToStatus:        cmd.Status,
		ChangeReason:    cmd.Reason,
		Notes:           cmd.Notes,
		DurationMinutes: &duration,
	}

	updated.AppendNote(now, transitionNote(from, cmd.Status, cmd.Reason, cmd.Notes))
	updated.StatusChangeLog = append(updated.StatusChangeLog, entry.LogItem())
	updated.UpdatedAt = now

	err = s.uow.Do(ctx, func(batches repository.BatchRepository, audits repository.AuditRepository) error {
		if err := batches.Update(ctx, updated); err != nil {
			return err
		}
		if err := audits.Create(ctx, entry); err != nil {
			return fmt.Errorf("%w: %v", ErrAuditWrite, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.failed(cmd, from, err)
	}

	metrics.StatusTransitionsTotal.WithLabelValues(from, cmd.Status).Inc()
	logger.Info("Batch status changed",
		"batch_id", updated.ID,
		"company_id", updated.CompanyID,
		"from", from,
		"to", updated.Status,
		"actor", cmd.Actor.UserID)

	return updated, nil
}

// failed maps a rolled back transition to a service error and logs it.
func (s *TransitionService) failed(cmd TransitionCommand, from string, err error) error {
	attrs := []any{
		"batch_id", cmd.BatchID,
		"company_id", cmd.CompanyID,
		"actor", cmd.Actor.UserID,
		"from", from,
		"to", cmd.Status,
		"error", err,
	}

	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		metrics.TransitionFailuresTotal.WithLabelValues("conflict").Inc()
		logger.Warn("Batch status transition lost a concurrent update", attrs...)
		return ErrConflict
	case errors.Is(err, ErrAuditWrite):
		metrics.TransitionFailuresTotal.WithLabelValues("audit_write").Inc()
		logger.Error("Batch status transition rolled back: audit append failed", attrs...)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	default:
		metrics.TransitionFailuresTotal.WithLabelValues("persistence").Inc()
		logger.Error("Batch status transition rolled back", attrs...)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

func transitionNote(from, to, reason, notes string) string {
	text := fmt.Sprintf("Status changed from %s to %s. Reason: %s", from, to, reason)
	if notes != "" {
		text += ". Notes: " + notes
	}
	return text
}
