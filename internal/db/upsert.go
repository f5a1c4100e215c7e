package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// DefaultBatchSize bounds how many rows go into one staging COPY.
const DefaultBatchSize = 50_000

// UpsertSpec describes a bulk upsert target.
type UpsertSpec struct {
	Table     string   // schema-qualified target, e.g. "ownership.panel"
	Columns   []string // columns supplied by every row
	Key       []string // unique constraint columns
	Update    []string // columns overwritten on conflict; nil means all non-key columns
	BatchSize int      // rows per staging round; zero uses DefaultBatchSize

	// Replace, when set, deletes the matching target rows in the same
	// transaction before anything is merged, so the target ends up holding
	// exactly the written rows within that range.
	Replace *Delete
}

// Delete is a WHERE clause with its positional arguments.
type Delete struct {
	Where string
	Args  []any
}

func (s UpsertSpec) validate() error {
	if s.Table == "" {
		return eris.New("db: upsert: no table specified")
	}
	if len(s.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(s.Key) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	for _, k := range s.Key {
		if !slices.Contains(s.Columns, k) {
			return eris.Errorf("db: upsert: conflict key %q is not a column", k)
		}
	}
	return nil
}

func (s UpsertSpec) updateColumns() []string {
	if s.Update != nil {
		return s.Update
	}
	var out []string
	for _, c := range s.Columns {
		if !slices.Contains(s.Key, c) {
			out = append(out, c)
		}
	}
	return out
}

// stagingTable is the name of the per-transaction temp table for a target.
func (s UpsertSpec) stagingTable() string {
	return "_stage_" + strings.ReplaceAll(s.Table, ".", "_")
}

// upsertSQL builds the INSERT ... SELECT ... ON CONFLICT statement that
// moves staged rows into the target.
func (s UpsertSpec) upsertSQL() string {
	cols := quoteAndJoin(s.Columns)
	action := "DO NOTHING"
	if upd := s.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			id := pgx.Identifier{c}.Sanitize()
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", id, id)
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		Identifier(s.Table).Sanitize(),
		cols,
		cols,
		pgx.Identifier{s.stagingTable()}.Sanitize(),
		quoteAndJoin(s.Key),
		action,
	)
}

// BulkUpsert writes rows through a staging temp table in one transaction:
// each batch is COPYed into the staging table, merged into the target with
// ON CONFLICT, and the staging table is truncated for the next batch. With
// spec.Replace set it runs even for no rows, clearing the range.
func BulkUpsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 && spec.Replace == nil {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}
	batch := spec.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if spec.Replace != nil {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s", Identifier(spec.Table).Sanitize(), spec.Replace.Where)
		if _, err := tx.Exec(ctx, del, spec.Replace.Args...); err != nil {
			return 0, eris.Wrapf(err, "db: upsert: replace rows of %s", spec.Table)
		}
		if len(rows) == 0 {
			return 0, eris.Wrap(tx.Commit(ctx), "db: upsert: commit tx")
		}
	}

	stage := pgx.Identifier{spec.stagingTable()}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), Identifier(spec.Table).Sanitize())
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", spec.Table)
	}

	upsert := spec.upsertSQL()
	var affected int64
	for chunk := range slices.Chunk(rows, batch) {
		if _, err := tx.CopyFrom(ctx, stage, spec.Columns, pgx.CopyFromRows(chunk)); err != nil {
			return 0, eris.Wrapf(err, "db: upsert: copy into staging for %s", spec.Table)
		}
		tag, err := tx.Exec(ctx, upsert)
		if err != nil {
			return 0, eris.Wrapf(err, "db: upsert: merge into %s", spec.Table)
		}
		affected += tag.RowsAffected()
		if len(chunk) == batch {
			if _, err := tx.Exec(ctx, "TRUNCATE "+stage.Sanitize()); err != nil {
				return 0, eris.Wrapf(err, "db: upsert: truncate staging for %s", spec.Table)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return affected, nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
