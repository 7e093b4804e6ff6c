package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/store"
)

// Snapshot is a point-in-time view of runs created within a lookback window.
// Unlike the Prometheus counters it is computed from the registry, so it
// covers runs started by every replica sharing that registry.
type Snapshot struct {
	Total     int     `json:"total"`
	Pending   int     `json:"pending"`
	Running   int     `json:"running"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	FailRate  float64 `json:"fail_rate"`

	FailuresByCategory map[model.ErrorCategory]int `json:"failures_by_category"`
	FailuresByStep     map[model.StepName]int      `json:"failures_by_step"`
	AvgDurationSeconds float64                     `json:"avg_duration_seconds"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the registry subset needed to build a Snapshot.
type RunLister interface {
	List(ctx context.Context, filter store.RunFilter) ([]*model.RunState, error)
}

// Collect builds a Snapshot from runs created in the last lookbackHours.
// A non-positive lookback covers every run in the registry.
func Collect(ctx context.Context, runs RunLister, lookbackHours int, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		FailuresByCategory: map[model.ErrorCategory]int{},
		FailuresByStep:     map[model.StepName]int{},
		LookbackHours:      lookbackHours,
		CollectedAt:        now.UTC(),
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	all, err := runs.List(ctx, store.RunFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list runs")
	}

	var totalDur time.Duration
	for _, r := range all {
		if lookbackHours > 0 && r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.RunStatusPending:
			snap.Pending++
		case model.RunStatusRunning:
			snap.Running++
		case model.RunStatusCompleted:
			snap.Completed++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		case model.RunStatusFailed:
			snap.Failed++
			if r.Error != nil {
				snap.FailuresByCategory[r.Error.Category]++
				if r.Error.StepName != "" {
					snap.FailuresByStep[r.Error.StepName]++
				}
			}
		}
	}

	if finished := snap.Completed + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Completed > 0 {
		snap.AvgDurationSeconds = totalDur.Seconds() / float64(snap.Completed)
	}
	return snap, nil
}
