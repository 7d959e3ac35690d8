package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/pkg/logger"
)

const sequenceKeyTTL = 48 * time.Hour

var errNoCounter = errors.New("no sequence counter configured")

// SequenceCounter is the subset of the Redis client used for batch numbering.
type SequenceCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// BatchNumberGenerator hands out <PREFIX>-<YYYYMMDD>-<seq> numbers per company.
// The sequence restarts every day.
type BatchNumberGenerator struct {
	counter SequenceCounter
	batches repository.BatchRepository
	prefix  string
	now     func() time.Time
}

// NewBatchNumberGenerator creates a generator. counter may be nil, in which
// case numbers are derived from the rows already stored.
func NewBatchNumberGenerator(counter SequenceCounter, batches repository.BatchRepository, prefix string) *BatchNumberGenerator {
	return &BatchNumberGenerator{
		counter: counter,
		batches: batches,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Next returns the next free batch number for companyID.
func (g *BatchNumberGenerator) Next(ctx context.Context, companyID string) (string, error) {
	day := g.now().UTC().Format("20060102")
	stem := fmt.Sprintf("%s-%s-", g.prefix, day)

	seq, err := g.nextFromCounter(ctx, companyID, stem)
	if err != nil {
		if !errors.Is(err, errNoCounter) {
			logger.Warn("Batch sequence counter unavailable, falling back to database",
				"company_id", companyID, "error", err)
		}
		seq, err = g.nextFromDatabase(ctx, companyID, stem)
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%s%04d", stem, seq), nil
}

func (g *BatchNumberGenerator) nextFromCounter(ctx context.Context, companyID, stem string) (int64, error) {
	if g.counter == nil {
		return 0, errNoCounter
	}

	key := "batchseq:" + companyID + ":" + stem
	seq, err := g.counter.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if seq == 1 {
		// Fresh key: the counter may have been flushed while rows for the day exist.
		highest, err := g.batches.MaxNumberSuffix(ctx, companyID, stem)
		if err != nil {
			return 0, err
		}
		if highest > 0 {
			if seq, err = g.counter.IncrBy(ctx, key, highest).Result(); err != nil {
				return 0, err
			}
		}
		g.counter.Expire(ctx, key, sequenceKeyTTL)
	}
	return seq, nil
}

func (g *BatchNumberGenerator) nextFromDatabase(ctx context.Context, companyID, stem string) (int64, error) {
	highest, err := g.batches.MaxNumberSuffix(ctx, companyID, stem)
	if err != nil {
		return 0, fmt.Errorf("highest batch number: %w", err)
	}
	return highest + 1, nil
}
