package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Batch status constants
const (
	BatchStatusPending     = "pending"
	BatchStatusInProgress  = "in_progress"
	BatchStatusCompleted   = "completed"
	BatchStatusOnHold      = "on_hold"
	BatchStatusCancelled   = "cancelled"
	BatchStatusQualityHold = "quality_hold"
)

// BatchStatuses lists every status a batch can hold, in display order.
var BatchStatuses = []string{
	BatchStatusPending,
	BatchStatusInProgress,
	BatchStatusCompleted,
	BatchStatusOnHold,
	BatchStatusCancelled,
	BatchStatusQualityHold,
}

// Process type constants for textile pre-processing runs
const (
	ProcessTypeDesizing    = "desizing"
	ProcessTypeScouring    = "scouring"
	ProcessTypeBleaching   = "bleaching"
	ProcessTypeMercerizing = "mercerizing"
	ProcessTypeSingeing    = "singeing"
	ProcessTypeHeatSetting = "heat_setting"
	ProcessTypeCombined    = "combined"
)

var ProcessTypes = []string{
	ProcessTypeDesizing,
	ProcessTypeScouring,
	ProcessTypeBleaching,
	ProcessTypeMercerizing,
	ProcessTypeSingeing,
	ProcessTypeHeatSetting,
	ProcessTypeCombined,
}

// IsValidBatchStatus reports whether s is one of BatchStatuses.
func IsValidBatchStatus(s string) bool {
	return contains(BatchStatuses, s)
}

// IsValidProcessType reports whether p is one of ProcessTypes.
func IsValidProcessType(p string) bool {
	return contains(ProcessTypes, p)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Batch is one production/processing run.
type Batch struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID         string     `gorm:"size:64;not null;index;uniqueIndex:idx_batches_company_number,priority:1" json:"company_id"`
	BatchNumber       string     `gorm:"size:64;not null;uniqueIndex:idx_batches_company_number,priority:2" json:"batch_number"`
	ProductionOrderID *uuid.UUID `gorm:"type:uuid;index" json:"production_order_id,omitempty"`
	InwardID          *uuid.UUID `gorm:"type:uuid;index" json:"inward_id,omitempty"`
	ProcessType       string     `gorm:"size:32;not null;index" json:"process_type"`
	Status            string     `gorm:"size:32;not null;default:pending;index" json:"status"`
	Progress          int        `gorm:"not null;default:0" json:"progress"`
	Efficiency        float64    `gorm:"not null;default:0" json:"efficiency"`

	Timing BatchTiming `gorm:"embedded;embeddedPrefix:timing_" json:"timing"`

	InputMaterials    datatypes.JSONSlice[InputMaterial]       `gorm:"type:jsonb" json:"input_materials"`
	ProcessParameters datatypes.JSONSlice[ProcessParameter]    `gorm:"type:jsonb" json:"process_parameters"`
	QualityChecks     datatypes.JSONSlice[QualityCheck]        `gorm:"type:jsonb" json:"quality_checks"`
	CostBreakdown     datatypes.JSONSlice[CostItem]            `gorm:"type:jsonb" json:"cost_breakdown"`
	StatusChangeLog   datatypes.JSONSlice[StatusChangeLogItem] `gorm:"type:jsonb" json:"status_change_log"`

	Notes     string    `gorm:"type:text" json:"notes"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedBy string    `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Batch
func (Batch) TableName() string {
	return "pre_processing_batches"
}

// BeforeCreate assigns an id when the caller did not.
func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	return nil
}

// BatchTiming holds planned and actual timestamps of a run.
type BatchTiming struct {
	PlannedStartTime *time.Time `json:"planned_start_time"`
	PlannedEndTime   *time.Time `json:"planned_end_time"`
	ActualStartTime  *time.Time `json:"actual_start_time"`
	ActualEndTime    *time.Time `json:"actual_end_time"`
	HoldStartedAt    *time.Time `json:"hold_started_at,omitempty"`
	DowntimeMinutes  int        `gorm:"not null;default:0" json:"downtime_minutes"`
	// DowntimeSeconds accumulates exact hold time; DowntimeMinutes is its floor.
	DowntimeSeconds  int64      `gorm:"not null;default:0" json:"-"`
}

// InputMaterial is a lot of greige fabric or chemical consumed by the batch.
type InputMaterial struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	LotNumber    string          `json:"lot_number,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	AddedAt      time.Time       `json:"added_at"`
	AddedBy      string          `json:"added_by,omitempty"`
}

// ProcessParameter is a recorded machine or recipe setting.
type ProcessParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Quality check results
const (
	QualityResultPass = "pass"
	QualityResultFail = "fail"
)

// QualityCheck is one inspection performed on the batch.
type QualityCheck struct {
	Parameter string    `json:"parameter"`
	Expected  string    `json:"expected,omitempty"`
	Actual    string    `json:"actual"`
	Result    string    `json:"result"`
	Remarks   string    `json:"remarks,omitempty"`
	CheckedBy string    `json:"checked_by"`
	CheckedAt time.Time `json:"checked_at"`
}

// CostItem is a line in the batch cost breakdown.
type CostItem struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// StatusChangeLogItem is the read-side copy of a status_change audit entry.
// The audit log is the source of truth; this slice can be rebuilt from it.
type StatusChangeLogItem struct {
	AuditID      uuid.UUID `json:"audit_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	ChangeReason string    `json:"change_reason"`
	Notes        string    `json:"notes,omitempty"`
	ChangedBy    string    `json:"changed_by"`
	ChangedAt    time.Time `json:"changed_at"`
}

// TotalCost sums the cost breakdown.
func (b *Batch) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.CostBreakdown {
		total = total.Add(item.Amount)
	}
	return total
}

// LastStatusChangeAt is when the batch entered its current status.
func (b *Batch) LastStatusChangeAt() time.Time {
	if n := len(b.StatusChangeLog); n > 0 {
		return b.StatusChangeLog[n-1].ChangedAt
	}
	return b.CreatedAt
}

// AppendNote adds a timestamped line to the free-text notes.
func (b *Batch) AppendNote(at time.Time, text string) {
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(text))
	if b.Notes == "" {
		b.Notes = line
		return
	}
	b.Notes = b.Notes + "\n" + line
}

// IsCompleted returns true once the batch is in the completed status
func (b *Batch) IsCompleted() bool {
	return b.Status == BatchStatusCompleted
}

// Clone returns a copy that shares no slices or timestamps with b.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Timing = BatchTiming{
		PlannedStartTime: cloneTime(b.Timing.PlannedStartTime),
		PlannedEndTime:   cloneTime(b.Timing.PlannedEndTime),
		ActualStartTime:  cloneTime(b.Timing.ActualStartTime),
		ActualEndTime:    cloneTime(b.Timing.ActualEndTime),
		HoldStartedAt:    cloneTime(b.Timing.HoldStartedAt),
		DowntimeMinutes:  b.Timing.DowntimeMinutes,
		DowntimeSeconds:  b.Timing.DowntimeSeconds,
	}
	c.InputMaterials = append(datatypes.JSONSlice[InputMaterial](nil), b.InputMaterials...)
	c.ProcessParameters = append(datatypes.JSONSlice[ProcessParameter](nil), b.ProcessParameters...)
	c.QualityChecks = append(datatypes.JSONSlice[QualityCheck](nil), b.QualityChecks...)
	c.CostBreakdown = append(datatypes.JSONSlice[CostItem](nil), b.CostBreakdown...)
	c.StatusChangeLog = append(datatypes.JSONSlice[StatusChangeLogItem](nil), b.StatusChangeLog...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
