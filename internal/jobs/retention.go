package jobs

import (
	"context"
)

// AuditRetentionJobName is the scheduler key of the audit purge.
const AuditRetentionJobName = "audit-retention"

// AuditPurger deletes audit entries past their retention period.
type AuditPurger interface {
	PurgeExpired(ctx context.Context, retentionDays int) (int64, error)
}

// AuditRetentionJob purges audit entries older than retentionDays.
func AuditRetentionJob(purger AuditPurger, retentionDays int) Job {
	return func(ctx context.Context) error {
		_, err := purger.PurgeExpired(ctx, retentionDays)
		return err
	}
}
