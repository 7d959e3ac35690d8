package services

import (
	"github.com/redis/go-redis/v9"
	"github.com/weavetrack/erp-api/internal/config"
	"github.com/weavetrack/erp-api/internal/repository"
)

// Services holds all service instances
type Services struct {
	Audit      *AuditService
	Batch      *BatchService
	Transition *TransitionService
	Export     *ExportService
	Numbers    *BatchNumberGenerator
}

// NewServices creates all service instances. redisClient may be nil.
func NewServices(repos *repository.Repositories, redisClient *redis.Client, cfg *config.Config) *Services {
	var counter SequenceCounter
	if redisClient != nil {
		counter = redisClient
	}

	numbers := NewBatchNumberGenerator(counter, repos.Batch, cfg.BatchNumberPrefix)
	batchSvc := NewBatchService(repos.Batch, repos.Audit, repos.Tx, numbers, cfg.DefaultPageSize)

	return &Services{
		Audit:      NewAuditService(repos.Audit),
		Batch:      batchSvc,
		Transition: NewTransitionService(repos.Batch, repos.Tx),
		Export:     NewExportService(batchSvc),
		Numbers:    numbers,
	}
}
