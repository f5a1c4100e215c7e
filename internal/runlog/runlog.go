// Package runlog records pipeline stages of each run and reads them back for
// the status command.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stage status values.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one stage of one pipeline run.
type Entry struct {
	ID          int64          `json:"id"`
	RunID       uuid.UUID      `json:"run_id"`
	Stage       string         `json:"stage"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Rows        int64          `json:"rows"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Duration is the wall time of a finished stage, or zero while running.
func (e Entry) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Result is what a finished stage reports.
type Result struct {
	Rows     int64          `json:"rows"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Journal persists stage entries. Both stores implement it.
type Journal interface {
	Start(ctx context.Context, runID uuid.UUID, stage string) (int64, error)
	Complete(ctx context.Context, id int64, res *Result) error
	Fail(ctx context.Context, id int64, msg string) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Run binds a journal to one run identifier.
type Run struct {
	ID      uuid.UUID
	journal Journal
}

// NewRun starts a new run with a fresh identifier. A nil journal records
// nothing.
func NewRun(j Journal) *Run {
	return &Run{ID: uuid.New(), journal: j}
}

// Start opens a stage entry.
func (r *Run) Start(ctx context.Context, stage string) (int64, error) {
	if r.journal == nil {
		return 0, nil
	}
	return r.journal.Start(ctx, r.ID, stage)
}

// Complete closes a stage entry as successful.
func (r *Run) Complete(ctx context.Context, id int64, res *Result) error {
	if r.journal == nil {
		return nil
	}
	return r.journal.Complete(ctx, id, res)
}

// Fail closes a stage entry with an error message.
func (r *Run) Fail(ctx context.Context, id int64, msg string) error {
	if r.journal == nil {
		return nil
	}
	return r.journal.Fail(ctx, id, msg)
}
