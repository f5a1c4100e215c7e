package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/monitoring"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

func statusEntries() (uuid.UUID, uuid.UUID, []runlog.Entry) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}
	older := uuid.MustParse("abc12345-6789-0000-0000-000000000000")
	newer := uuid.MustParse("def12345-6789-0000-0000-000000000000")
	return older, newer, []runlog.Entry{
		{ID: 5, RunID: newer, Stage: "rollup", Status: runlog.StatusFailed, StartedAt: now.Add(time.Hour + time.Second), CompletedAt: at(time.Hour + 3*time.Second), Error: "rollup: reduce shard 0: context canceled"},
		{ID: 4, RunID: newer, Stage: "classify", Status: runlog.StatusComplete, StartedAt: now.Add(time.Hour), CompletedAt: at(time.Hour + time.Second), Rows: 12345},
		{ID: 3, RunID: older, Stage: "aggregate", Status: runlog.StatusComplete, StartedAt: now.Add(90 * time.Second), CompletedAt: at(2 * time.Minute), Rows: 800},
		{ID: 2, RunID: older, Stage: "schemes", Status: runlog.StatusComplete, StartedAt: now.Add(30 * time.Second), CompletedAt: at(90 * time.Second), Rows: 1000},
		{ID: 1, RunID: older, Stage: "classify", Status: runlog.StatusComplete, StartedAt: now, CompletedAt: at(30 * time.Second), Rows: 10},
	}
}

func TestFormatRunLog(t *testing.T) {
	_, _, entries := statusEntries()

	var buf bytes.Buffer
	formatRunLog(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "RUN")
	assert.Contains(t, output, "STAGE")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "def12345")
	assert.Contains(t, output, "12,345")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "context canceled")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "30s")
}

func TestFormatRunLog_Running(t *testing.T) {
	var buf bytes.Buffer
	formatRunLog(&buf, []runlog.Entry{{RunID: uuid.New(), Stage: "rollup", Status: runlog.StatusRunning, StartedAt: time.Now()}})
	assert.Contains(t, buf.String(), "running")
	assert.Contains(t, buf.String(), "-")
}

func TestSummarizeRuns(t *testing.T) {
	older, newer, entries := statusEntries()

	runs := summarizeRuns(entries)
	require.Len(t, runs, 2)

	assert.Equal(t, newer.String(), runs[0].RunID)
	assert.Equal(t, runlog.StatusFailed, runs[0].Status())
	assert.Equal(t, 2, runs[0].Stages)

	assert.Equal(t, older.String(), runs[1].RunID)
	assert.Equal(t, runlog.StatusComplete, runs[1].Status())
	assert.Equal(t, 3, runs[1].Stages)
	assert.Equal(t, "aggregate", runs[1].LastStep)
	assert.Equal(t, 2*time.Minute, runs[1].Ended.Sub(runs[1].Started))

	var buf bytes.Buffer
	formatRunSummaries(&buf, runs)
	output := buf.String()
	assert.Contains(t, output, "LAST STAGE")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "complete")
}

func TestRunSummary_Running(t *testing.T) {
	s := runSummary{Stages: 2, Running: 1}
	assert.Equal(t, runlog.StatusRunning, s.Status())
}

func TestFilterRun(t *testing.T) {
	older, _, entries := statusEntries()

	assert.Len(t, filterRun(entries, ""), 5)
	got := filterRun(entries, "abc1")
	require.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, older, e.RunID)
	}
	assert.Empty(t, filterRun(entries, "zzz"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.s, tt.max))
		})
	}
}

func TestFormatHealth(t *testing.T) {
	done := time.Date(2025, 6, 15, 10, 32, 0, 0, time.UTC)
	snap := &monitoring.MetricsSnapshot{
		Runs: 3, RunsComplete: 2, RunsFailed: 1,
		FailRate:      1.0 / 3,
		ExcludedPairs: 12500,
		LastComplete:  &done,
		LookbackHours: 168,
	}

	var buf bytes.Buffer
	formatHealth(&buf, snap, nil)
	output := buf.String()
	assert.Contains(t, output, "168h")
	assert.Contains(t, output, "complete 2, failed 1, open 0")
	assert.Contains(t, output, "33.3%")
	assert.Contains(t, output, "2025-06-15 10:32")
	assert.Contains(t, output, "12,500")
	assert.Contains(t, output, "No alerts.")
}

func TestFormatHealth_Alerts(t *testing.T) {
	var buf bytes.Buffer
	formatHealth(&buf, &monitoring.MetricsSnapshot{LookbackHours: 24}, []monitoring.Alert{
		{Type: monitoring.AlertNoCompleteRun, Severity: "high", Message: "No pipeline run completed in last 24h"},
	})
	output := buf.String()
	assert.Contains(t, output, "never")
	assert.Contains(t, output, "[high] no_complete_run: No pipeline run completed in last 24h")
}

type entrySlice []runlog.Entry

func (s entrySlice) Recent(context.Context, int) ([]runlog.Entry, error) { return s, nil }

func TestRunCheck(t *testing.T) {
	mc := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.5}
	newChecker := func(entries ...runlog.Entry) *monitoring.Checker {
		return monitoring.NewChecker(monitoring.NewCollector(entrySlice(entries)), monitoring.NewAlerter(mc), mc)
	}
	started := time.Now().Add(-time.Hour)
	finished := started.Add(time.Minute)

	t.Run("healthy", func(t *testing.T) {
		var buf bytes.Buffer
		err := runCheck(context.Background(), &buf, newChecker(runlog.Entry{
			RunID: uuid.New(), Stage: "aggregate", Status: runlog.StatusComplete,
			StartedAt: started, CompletedAt: &finished,
		}))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "No alerts.")
	})

	t.Run("stale", func(t *testing.T) {
		var buf bytes.Buffer
		err := runCheck(context.Background(), &buf, newChecker())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 alert(s) raised")
		assert.Contains(t, buf.String(), "no_complete_run")
	})
}
