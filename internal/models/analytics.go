package models

// BatchAnalytics aggregates batches over a filtered range.
type BatchAnalytics struct {
	TotalBatches         int64            `json:"total_batches"`
	StatusCounts         map[string]int64 `json:"status_counts"`
	CompletionRate       float64          `json:"completion_rate"`
	AverageEfficiency    float64          `json:"average_efficiency"`
	TotalDowntimeMinutes int64            `json:"total_downtime_minutes"`
	InProgress           int64            `json:"in_progress"`
	OnHold               int64            `json:"on_hold"`
}

// NewBatchAnalytics returns an empty result with every status present.
func NewBatchAnalytics() *BatchAnalytics {
	counts := make(map[string]int64, len(BatchStatuses))
	for _, s := range BatchStatuses {
		counts[s] = 0
	}
	return &BatchAnalytics{StatusCounts: counts}
}
