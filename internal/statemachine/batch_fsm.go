package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/weavetrack/erp-api/internal/models"
)

// Events, one per target status
const (
	EventReset          = "reset"
	EventStart          = "start"
	EventComplete       = "complete"
	EventHold           = "hold"
	EventCancel         = "cancel"
	EventHoldForQuality = "hold_for_quality"
)

var eventByStatus = map[string]string{
	models.BatchStatusPending:     EventReset,
	models.BatchStatusInProgress:  EventStart,
	models.BatchStatusCompleted:   EventComplete,
	models.BatchStatusOnHold:      EventHold,
	models.BatchStatusCancelled:   EventCancel,
	models.BatchStatusQualityHold: EventHoldForQuality,
}

// EventFor returns the event that moves a batch into status.
func EventFor(status string) (string, bool) {
	event, ok := eventByStatus[status]
	return event, ok
}

// BatchFSM wraps a batch with its state machine. Timing side effects are
// applied to the wrapped batch by enter/leave callbacks.
type BatchFSM struct {
	batch *models.Batch
	fsm   *fsm.FSM
	now   time.Time
}

// NewBatchFSM creates a state machine positioned at the batch's current
// status. now is the instant stamped by any timing side effect.
func NewBatchFSM(batch *models.Batch, now time.Time) *BatchFSM {
	b := &BatchFSM{
		batch: batch,
		now:   now,
	}

	events := make(fsm.Events, 0, len(models.BatchStatuses))
	for _, dst := range models.BatchStatuses {
		events = append(events, fsm.EventDesc{
			Name: eventByStatus[dst],
			Src:  otherStatuses(dst),
			Dst:  dst,
		})
	}

	b.fsm = fsm.NewFSM(
		batch.Status,
		events,
		fsm.Callbacks{
			"enter_" + models.BatchStatusPending:    b.enterPending,
			"enter_" + models.BatchStatusInProgress: b.enterInProgress,
			"enter_" + models.BatchStatusCompleted:  b.enterCompleted,
			"leave_" + models.BatchStatusCompleted:  b.leaveCompleted,
			"enter_" + models.BatchStatusOnHold:     b.enterOnHold,
			"leave_" + models.BatchStatusOnHold:     b.leaveOnHold,
		},
	)

	return b
}

func otherStatuses(exclude string) []string {
	out := make([]string, 0, len(models.BatchStatuses)-1)
	for _, s := range models.BatchStatuses {
		if s != exclude {
			out = append(out, s)
		}
	}
	return out
}

// TransitionTo moves the batch into status and applies its side effects.
func (b *BatchFSM) TransitionTo(ctx context.Context, status string) error {
	event, ok := EventFor(status)
	if !ok {
		return fmt.Errorf("unknown batch status: %s", status)
	}

	if err := b.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("batch cannot move from %s to %s: %w", b.batch.Status, status, err)
	}

	b.batch.Status = b.fsm.Current()
	return nil
}

// Can checks if the batch may move into status
func (b *BatchFSM) Can(status string) bool {
	event, ok := EventFor(status)
	return ok && b.fsm.Can(event)
}

// enterPending resets the run: the next start stamps a fresh start time.
func (b *BatchFSM) enterPending(_ context.Context, e *fsm.Event) {
	b.batch.Timing.ActualStartTime = nil
	b.batch.Timing.ActualEndTime = nil
	b.batch.Progress = 0
}

func (b *BatchFSM) enterInProgress(_ context.Context, e *fsm.Event) {
	if e.Src == models.BatchStatusPending {
		b.stamp(&b.batch.Timing.ActualStartTime)
	}
}

func (b *BatchFSM) enterCompleted(_ context.Context, e *fsm.Event) {
	if b.batch.Timing.ActualStartTime == nil {
		b.stamp(&b.batch.Timing.ActualStartTime)
	}
	b.stamp(&b.batch.Timing.ActualEndTime)
	b.batch.Progress = 100
}

// leaveCompleted reopens the batch; it has no end time until completed again.
func (b *BatchFSM) leaveCompleted(_ context.Context, e *fsm.Event) {
	b.batch.Timing.ActualEndTime = nil
}

func (b *BatchFSM) enterOnHold(_ context.Context, e *fsm.Event) {
	b.stamp(&b.batch.Timing.HoldStartedAt)
}

func (b *BatchFSM) leaveOnHold(_ context.Context, e *fsm.Event) {
	timing := &b.batch.Timing
	started := timing.HoldStartedAt
	if started != nil && b.now.After(*started) {
		// Rows written before seconds were tracked only carry minutes.
		if floor := int64(timing.DowntimeMinutes) * 60; timing.DowntimeSeconds < floor {
			timing.DowntimeSeconds = floor
		}
		timing.DowntimeSeconds += int64(b.now.Sub(*started) / time.Second)
		timing.DowntimeMinutes = int(timing.DowntimeSeconds / 60)
	}
	timing.HoldStartedAt = nil
}

func (b *BatchFSM) stamp(field **time.Time) {
	t := b.now
	*field = &t
}
