package handlers

import (
	"github.com/weavetrack/erp-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health *HealthHandler
	Batch  *BatchHandler
	Audit  *AuditHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, db Pinger, worker StatsProvider) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(db, worker),
		Batch:  NewBatchHandler(svcs.Batch, svcs.Transition, svcs.Audit, svcs.Export),
		Audit:  NewAuditHandler(svcs.Audit),
	}
}
