package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/store"
)

// Janitor evicts old terminal runs and fails runs orphaned by a dead process.
type Janitor struct {
	Orchestrator *Orchestrator
	Registry     store.Registry
	// TTL is how long terminal runs are kept.
	TTL time.Duration
	// StaleAfter is how long an unfinished run may go without an update
	// before it is considered orphaned. Zero disables orphan detection.
	StaleAfter time.Duration
	Now        func() time.Time
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Orphaned int `json:"orphaned"`
	Evicted  int `json:"evicted"`
}

// Sweep runs one pass.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now().UTC()
	if j.Now != nil {
		now = j.Now()
	}

	var res SweepResult
	if j.StaleAfter > 0 && j.Orchestrator != nil {
		n, err := j.Orchestrator.FailOrphaned(ctx, now.Add(-j.StaleAfter))
		if err != nil {
			return res, err
		}
		res.Orphaned = n
	}
	if j.TTL > 0 {
		n, err := j.Registry.DeleteExpired(ctx, now.Add(-j.TTL))
		if err != nil {
			return res, eris.Wrap(err, "janitor: delete expired runs")
		}
		res.Evicted = n
	}
	return res, nil
}

// Run sweeps every interval until ctx ends. A non-positive interval disables
// sweeping.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := j.Sweep(ctx)
			if err != nil {
				zap.L().Warn("janitor: sweep failed", zap.Error(err))
				continue
			}
			if res.Orphaned > 0 || res.Evicted > 0 {
				zap.L().Info("janitor: sweep complete",
					zap.Int("orphaned", res.Orphaned),
					zap.Int("evicted", res.Evicted),
				)
			}
		}
	}
}
