package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit log types
const (
	LogTypeStatusChange  = "status_change"
	LogTypeBatchCreated  = "batch_created"
	LogTypeBatchUpdated  = "batch_updated"
	LogTypeBatchDeleted  = "batch_deleted"
	LogTypeQualityCheck  = "quality_check"
	LogTypeMaterialInput = "material_input"
)

var LogTypes = []string{
	LogTypeStatusChange,
	LogTypeBatchCreated,
	LogTypeBatchUpdated,
	LogTypeBatchDeleted,
	LogTypeQualityCheck,
	LogTypeMaterialInput,
}

// IsValidLogType reports whether t is a known audit log type.
func IsValidLogType(t string) bool {
	return contains(LogTypes, t)
}

// EntityTypeBatch identifies pre-processing batches in the audit log.
const EntityTypeBatch = "pre_processing_batch"

// ErrAuditImmutable is returned when something tries to rewrite an appended entry.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditLogEntry is an immutable record of a change made to an entity.
type AuditLogEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  string    `gorm:"size:64;not null;index:idx_audit_company_entity,priority:1;index:idx_audit_company_time,priority:1" json:"company_id"`
	Timestamp  time.Time `gorm:"column:logged_at;not null;index:idx_audit_company_time,priority:2" json:"timestamp"`
	EntityType string    `gorm:"size:64;not null;index:idx_audit_company_entity,priority:2" json:"entity_type"`
	EntityID   string    `gorm:"size:64;not null;index:idx_audit_company_entity,priority:3" json:"entity_id"`
	LogType    string    `gorm:"size:32;not null;index" json:"log_type"`

	StatusChange *StatusChange     `gorm:"type:jsonb;serializer:json" json:"status_change,omitempty"`
	Actor        Actor             `gorm:"embedded;embeddedPrefix:actor_" json:"actor"`
	Request      RequestInfo       `gorm:"embedded;embeddedPrefix:request_" json:"request_info"`
	Details      datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`

	IsArchived bool       `gorm:"not null;default:false;index" json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName specifies the table name for AuditLogEntry
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}

// BeforeCreate assigns id and timestamp on append.
func (e *AuditLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate blocks Save/Updates on existing entries. Archiving goes
// through UpdateColumns, which skips hooks.
func (e *AuditLogEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

// StatusChange describes a status transition.
type StatusChange struct {
	FromStatus      string `json:"from_status"`
	ToStatus        string `json:"to_status"`
	ChangeReason    string `json:"change_reason"`
	Notes           string `json:"notes,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
}

// Actor is a snapshot of the user who performed an action.
type Actor struct {
	UserID string `gorm:"size:64;not null" json:"user_id"`
	Name   string `gorm:"size:128" json:"name"`
	Email  string `gorm:"size:255" json:"email"`
	Role   string `gorm:"size:32" json:"role"`
}

// RequestInfo captures where an action came from.
type RequestInfo struct {
	IPAddress string `gorm:"size:45" json:"ip_address"`
	UserAgent string `gorm:"size:255" json:"user_agent"`
	SessionID string `gorm:"size:128" json:"session_id"`
	Method    string `gorm:"size:10" json:"method"`
	URL       string `gorm:"size:2048" json:"url"`
}

// LogItem converts a status_change entry into its batch-side projection.
func (e *AuditLogEntry) LogItem() StatusChangeLogItem {
	item := StatusChangeLogItem{
		AuditID:   e.ID,
		ChangedBy: e.Actor.UserID,
		ChangedAt: e.Timestamp,
	}
	if e.StatusChange != nil {
		item.FromStatus = e.StatusChange.FromStatus
		item.ToStatus = e.StatusChange.ToStatus
		item.ChangeReason = e.StatusChange.ChangeReason
		item.Notes = e.StatusChange.Notes
	}
	return item
}
