package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_TotalCost(t *testing.T) {
	b := &Batch{CostBreakdown: []CostItem{
		{Category: "chemicals", Amount: decimal.RequireFromString("10.25")},
		{Category: "steam", Amount: decimal.RequireFromString("4.75")},
	}}
	assert.True(t, b.TotalCost().Equal(decimal.NewFromInt(15)))
	assert.True(t, (&Batch{}).TotalCost().IsZero())
}

func TestBatch_AppendNote(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	b := &Batch{}

	b.AppendNote(at, "  first  ")
	b.AppendNote(at.Add(time.Hour), "second")

	assert.Equal(t, "[2026-10-15T09:30:00Z] first\n[2026-10-15T10:30:00Z] second", b.Notes)
}

func TestBatch_CloneSharesNothing(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	b := &Batch{
		Status:          BatchStatusInProgress,
		Timing:          BatchTiming{ActualStartTime: &start},
		QualityChecks:   []QualityCheck{{Parameter: "ph"}},
		StatusChangeLog: []StatusChangeLogItem{{ToStatus: BatchStatusInProgress}},
	}

	c := b.Clone()
	*c.Timing.ActualStartTime = start.Add(time.Hour)
	c.QualityChecks[0].Parameter = "whiteness"
	c.StatusChangeLog = append(c.StatusChangeLog, StatusChangeLogItem{ToStatus: BatchStatusCompleted})

	assert.Equal(t, start, *b.Timing.ActualStartTime)
	assert.Equal(t, "ph", b.QualityChecks[0].Parameter)
	assert.Len(t, b.StatusChangeLog, 1)
}

func TestBatch_LastStatusChangeAt(t *testing.T) {
	created := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	b := &Batch{CreatedAt: created}
	assert.Equal(t, created, b.LastStatusChangeAt())

	changed := created.Add(90 * time.Minute)
	b.StatusChangeLog = append(b.StatusChangeLog, StatusChangeLogItem{ChangedAt: changed})
	assert.Equal(t, changed, b.LastStatusChangeAt())
}

func TestAuditLogEntry_LogItem(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	e := &AuditLogEntry{
		ID:        uuid.New(),
		Timestamp: at,
		LogType:   LogTypeStatusChange,
		Actor:     Actor{UserID: "u-1"},
		StatusChange: &StatusChange{
			FromStatus:   BatchStatusPending,
			ToStatus:     BatchStatusInProgress,
			ChangeReason: "start run",
		},
	}

	item := e.LogItem()

	assert.Equal(t, e.ID, item.AuditID)
	assert.Equal(t, "u-1", item.ChangedBy)
	assert.Equal(t, at, item.ChangedAt)
	assert.Equal(t, BatchStatusInProgress, item.ToStatus)
	assert.Equal(t, "start run", item.ChangeReason)
}

func TestEnums(t *testing.T) {
	for _, s := range BatchStatuses {
		assert.True(t, IsValidBatchStatus(s), s)
	}
	assert.False(t, IsValidBatchStatus("done"))
	assert.False(t, IsValidBatchStatus(""))
	assert.True(t, IsValidProcessType(ProcessTypeHeatSetting))
	assert.False(t, IsValidProcessType("dyeing"))
	assert.True(t, IsValidLogType(LogTypeMaterialInput))
	assert.False(t, IsValidLogType("login"))

	counts := NewBatchAnalytics().StatusCounts
	require.Len(t, counts, len(BatchStatuses))
	assert.Zero(t, counts[BatchStatusQualityHold])
}
