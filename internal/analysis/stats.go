package analysis

import (
	"context"
	"fmt"

	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// Stats is a per-status breakdown of all stored jobs.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Aggregator computes job statistics and health recommendations.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates a new Aggregator.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// JobStats counts stored jobs grouped by status.
func (a *Aggregator) JobStats(ctx context.Context) (*Stats, error) {
	counts, err := a.store.JobStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating job stats: %w", err)
	}
	s := &Stats{
		Pending:    counts[models.JobStatusPending],
		Processing: counts[models.JobStatusProcessing],
		Completed:  counts[models.JobStatusCompleted],
		Failed:     counts[models.JobStatusFailed],
		Cancelled:  counts[models.JobStatusCancelled],
	}
	s.Total = s.Pending + s.Processing + s.Completed + s.Failed + s.Cancelled
	return s, nil
}

// Recommendations derives operator guidance from fixed thresholds.
func Recommendations(stats *Stats, stuckCount int) []string {
	var recs []string

	if stuckCount > 0 {
		recs = append(recs, fmt.Sprintf("You have %d stuck jobs, consider cancelling them.", stuckCount))
	}
	if stuckCount > 3 {
		recs = append(recs, "More than 3 jobs are stuck; the analysis worker may be down.")
	}
	if stats.Failed > stats.Completed && stats.Failed > 5 {
		recs = append(recs, fmt.Sprintf("High failure rate: %d failed vs %d completed jobs.", stats.Failed, stats.Completed))
	}
	if stats.Processing > 10 {
		recs = append(recs, fmt.Sprintf("%d jobs are processing; the worker may be a bottleneck.", stats.Processing))
	}

	if len(recs) == 0 {
		recs = append(recs, "All systems healthy.")
	}
	return recs
}
