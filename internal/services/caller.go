package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/weavetrack/erp-api/internal/models"
	"gorm.io/datatypes"
)

// Caller identifies who performs an operation, for which company and from where.
type Caller struct {
	CompanyID string
	Actor     models.Actor
	Request   models.RequestInfo
}

func (c Caller) validate(ve *ValidationError) {
	if c.CompanyID == "" {
		ve.Add("company_id", "is required")
	}
	if c.Actor.UserID == "" {
		ve.Add("actor", "is required")
	}
}

// newBatchEntry builds an audit entry about batch attributed to caller.
func newBatchEntry(caller Caller, batch *models.Batch, logType string, at time.Time, details datatypes.JSONMap) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ID:         uuid.New(),
		CompanyID:  caller.CompanyID,
		Timestamp:  at,
		EntityType: models.EntityTypeBatch,
		EntityID:   batch.ID.String(),
		LogType:    logType,
		Actor:      caller.Actor,
		Request:    caller.Request,
		Details:    details,
	}
}
