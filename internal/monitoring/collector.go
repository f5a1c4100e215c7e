// Package monitoring folds the run log into a health snapshot and raises
// webhook alerts when recent runs look unhealthy.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/pipeline"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// maxEntries bounds how much of the run log one collection reads.
const maxEntries = 10_000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	Runs         int     `json:"runs"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsOpen     int     `json:"runs_open"`
	FailRate     float64 `json:"fail_rate"`
	FailedStages int     `json:"failed_stages"`

	// Taken from the newest run that reported them.
	ExcludedPairs int        `json:"excluded_pairs"`
	ShrunkCells   int        `json:"shrunk_cells"`
	LastComplete  *time.Time `json:"last_complete,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// EntrySource is the part of the run journal the collector reads.
type EntrySource interface {
	Recent(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// Collector gathers metrics from the run log.
type Collector struct {
	src EntrySource
}

// NewCollector creates a new metrics collector.
func NewCollector(src EntrySource) *Collector {
	return &Collector{src: src}
}

type runState struct {
	started time.Time
	ended   time.Time
	failed  bool
	open    bool
}

// Collect summarizes the runs started within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.src.Recent(ctx, maxEntries)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read run log")
	}

	runs := map[string]*runState{}
	var classifyAt, aggregateAt time.Time
	for _, e := range entries {
		if e.StartedAt.Before(cutoff) {
			continue
		}
		id := e.RunID.String()
		r, ok := runs[id]
		if !ok {
			r = &runState{started: e.StartedAt}
			runs[id] = r
		}
		switch e.Status {
		case runlog.StatusFailed:
			r.failed = true
			snap.FailedStages++
		case runlog.StatusRunning:
			r.open = true
		}
		if e.CompletedAt != nil && e.CompletedAt.After(r.ended) {
			r.ended = *e.CompletedAt
		}

		if e.Status != runlog.StatusComplete {
			continue
		}
		switch e.Stage {
		case pipeline.StageClassify:
			if e.StartedAt.After(classifyAt) {
				classifyAt = e.StartedAt
				snap.ExcludedPairs = metaInt(e.Metadata, "excluded_pairs")
			}
		case pipeline.StageAggregate:
			if e.StartedAt.After(aggregateAt) {
				aggregateAt = e.StartedAt
				snap.ShrunkCells = metaInt(e.Metadata, "shrunk")
			}
		}
	}

	for _, r := range runs {
		snap.Runs++
		switch {
		case r.failed:
			snap.RunsFailed++
		case r.open:
			snap.RunsOpen++
		default:
			snap.RunsComplete++
			if snap.LastComplete == nil || r.ended.After(*snap.LastComplete) {
				ended := r.ended
				snap.LastComplete = &ended
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}

// metaInt reads a count from stage metadata. Metadata read back from a
// store arrives as JSON numbers.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
