package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/pipeline"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSource struct {
	entries []runlog.Entry
	err     error
}

func (f *fakeSource) Recent(_ context.Context, limit int) ([]runlog.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func entry(run uuid.UUID, stage, status string, ago time.Duration, meta map[string]any) runlog.Entry {
	started := time.Now().UTC().Add(-ago)
	e := runlog.Entry{RunID: run, Stage: stage, Status: status, StartedAt: started, Metadata: meta}
	if status != runlog.StatusRunning {
		done := started.Add(time.Minute)
		e.CompletedAt = &done
	}
	return e
}

func TestCollector_Collect(t *testing.T) {
	okRun, badRun, openRun, oldRun := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	src := &fakeSource{entries: []runlog.Entry{
		// Store metadata comes back as JSON numbers.
		entry(okRun, pipeline.StageClassify, runlog.StatusComplete, 2*time.Hour, map[string]any{"excluded_pairs": float64(42)}),
		entry(okRun, pipeline.StageAggregate, runlog.StatusComplete, 2*time.Hour, map[string]any{"shrunk": float64(3)}),
		entry(badRun, pipeline.StageClassify, runlog.StatusComplete, 5*time.Hour, map[string]any{"excluded_pairs": 7}),
		entry(badRun, pipeline.StageRollup, runlog.StatusFailed, 5*time.Hour, nil),
		entry(openRun, pipeline.StageClassify, runlog.StatusRunning, time.Hour, nil),
		entry(oldRun, pipeline.StageRollup, runlog.StatusFailed, 48*time.Hour, nil),
	}}

	snap, err := NewCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Runs)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsOpen)
	assert.Equal(t, 1, snap.FailedStages)
	assert.InDelta(t, 0.5, snap.FailRate, 1e-9)
	assert.Equal(t, 42, snap.ExcludedPairs)
	assert.Equal(t, 3, snap.ShrunkCells)
	require.NotNil(t, snap.LastComplete)
	assert.WithinDuration(t, time.Now().Add(-2*time.Hour+time.Minute), *snap.LastComplete, time.Minute)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := NewCollector(&fakeSource{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.Runs)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastComplete)
}

func TestCollector_SourceError(t *testing.T) {
	_, err := NewCollector(&fakeSource{err: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read run log")
}

func TestMetaInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 4, 4},
		{"int64", int64(5), 5},
		{"float64", float64(6), 6},
		{"missing", nil, 0},
		{"string", "7", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := map[string]any{}
			if tt.val != nil {
				m["n"] = tt.val
			}
			assert.Equal(t, tt.want, metaInt(m, "n"))
		})
	}
}
