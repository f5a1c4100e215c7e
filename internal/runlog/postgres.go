package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/db"
)

// DefaultLimit caps Recent when the caller passes no limit.
const DefaultLimit = 50

// Log is the Postgres journal over ownership.run_log.
type Log struct {
	pool db.Pool
}

// NewLog creates a Log backed by the given pool.
func NewLog(pool db.Pool) *Log {
	return &Log{pool: pool}
}

// Start records the beginning of a stage and returns its entry id.
func (l *Log) Start(ctx context.Context, runID uuid.UUID, stage string) (int64, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO ownership.run_log (run_id, stage, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		runID.String(), stage,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s", stage)
	}
	return id, nil
}

// Complete marks a stage entry as complete.
func (l *Log) Complete(ctx context.Context, id int64, res *Result) error {
	var rows int64
	var meta []byte
	if res != nil {
		rows = res.Rows
		if res.Metadata != nil {
			var err error
			if meta, err = json.Marshal(res.Metadata); err != nil {
				return eris.Wrap(err, "runlog: marshal metadata")
			}
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE ownership.run_log
		 SET status = 'complete', completed_at = now(), row_count = $1, metadata = $2
		 WHERE id = $3`,
		rows, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete entry %d", id)
	}
	return nil
}

// Fail marks a stage entry as failed.
func (l *Log) Fail(ctx context.Context, id int64, msg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE ownership.run_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail entry %d", id)
	}
	return nil
}

// LastSuccess returns when the stage last completed, or nil if it never has.
func (l *Log) LastSuccess(ctx context.Context, stage string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT completed_at FROM ownership.run_log
		 WHERE stage = $1 AND status = 'complete'
		 ORDER BY completed_at DESC LIMIT 1`,
		stage,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last success for %s", stage)
	}
	return &t, nil
}

// Recent returns the newest entries first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id::text, stage, status, started_at, completed_at, row_count, error, metadata
		 FROM ownership.run_log ORDER BY started_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			runID   string
			errStr  *string
			rawMeta []byte
		)
		if err := rows.Scan(&e.ID, &runID, &e.Stage, &e.Status, &e.StartedAt, &e.CompletedAt, &e.Rows, &errStr, &rawMeta); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, eris.Wrapf(err, "runlog: parse run id %q", runID)
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if len(rawMeta) > 0 {
			_ = json.Unmarshal(rawMeta, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: iterate entries")
}
