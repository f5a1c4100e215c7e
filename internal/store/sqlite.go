package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS panel (
	company_id     TEXT    NOT NULL,
	institution_id TEXT    NOT NULL,
	quarter        INTEGER NOT NULL,
	ratio          REAL    NOT NULL,
	scheme         INTEGER NOT NULL DEFAULT 0,
	market_value   REAL,
	origin         TEXT    NOT NULL,
	run_id         TEXT    NOT NULL,
	PRIMARY KEY (company_id, institution_id, quarter)
);

CREATE TABLE IF NOT EXISTS security_panel (
	security_id TEXT    NOT NULL,
	holder_id   TEXT    NOT NULL,
	quarter     INTEGER NOT NULL,
	value       REAL    NOT NULL,
	source      TEXT    NOT NULL,
	scheme      INTEGER NOT NULL,
	imputed     INTEGER NOT NULL DEFAULT 0,
	observed_at DATETIME,
	run_id      TEXT    NOT NULL,
	PRIMARY KEY (security_id, holder_id, quarter, source)
);

CREATE TABLE IF NOT EXISTS run_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT     NOT NULL,
	stage        TEXT     NOT NULL,
	status       TEXT     NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	row_count    INTEGER  NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_panel_quarter ON panel(quarter);
CREATE INDEX IF NOT EXISTS idx_security_panel_quarter ON security_panel(quarter);
CREATE INDEX IF NOT EXISTS idx_run_log_started_at ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// upsertSQL builds an INSERT ... ON CONFLICT DO UPDATE for one row.
func upsertSQL(table string, cols, key []string) string {
	var sets []string
	for _, c := range cols {
		if !slices.Contains(key, c) {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ") ON CONFLICT (" +
		strings.Join(key, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// writeRows upserts rows in a single transaction with one prepared statement.
// A non-zero span first clears that quarter range of table.
func (s *SQLiteStore) writeRows(ctx context.Context, table string, span Span, query string, rows [][]any) (int64, error) {
	if len(rows) == 0 && span.IsZero() {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if !span.IsZero() {
		del := "DELETE FROM " + table + " WHERE quarter BETWEEN ? AND ?"
		if _, err := tx.ExecContext(ctx, del, int(span.From), int(span.To)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: replace rows of %s", table)
		}
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r...)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert row")
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) WritePanel(ctx context.Context, runID uuid.UUID, span Span, rows []model.PanelRow) (int64, error) {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = panelValues(runID, r)
	}
	q := upsertSQL("panel", panelColumns, []string{"company_id", "institution_id", "quarter"})
	n, err := s.writeRows(ctx, "panel", span, q, vals)
	return n, eris.Wrap(err, "sqlite: write panel")
}

func (s *SQLiteStore) WriteSecurityPanel(ctx context.Context, runID uuid.UUID, span Span, ps []model.Position) (int64, error) {
	vals := make([][]any, len(ps))
	for i, p := range ps {
		vals[i] = securityPanelValues(runID, p)
	}
	q := upsertSQL("security_panel", securityPanelColumns, securityPanelKey)
	n, err := s.writeRows(ctx, "security_panel", span, q, vals)
	return n, eris.Wrap(err, "sqlite: write security panel")
}

// sqliteWhere renders the filter with positional placeholders.
func sqliteWhere(f Filter, idCol string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != 0 {
		conds = append(conds, "quarter >= ?")
		args = append(args, int(f.From))
	}
	if f.To != 0 {
		conds = append(conds, "quarter <= ?")
		args = append(args, int(f.To))
	}
	if f.CompanyID != "" {
		conds = append(conds, idCol+" = ?")
		args = append(args, f.CompanyID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return where, args
}

func (s *SQLiteStore) Panel(ctx context.Context, f Filter) ([]model.PanelRow, error) {
	where, args := sqliteWhere(f, "company_id")
	query := `SELECT company_id, institution_id, quarter, ratio, scheme, market_value, origin FROM panel` +
		where + ` ORDER BY company_id, institution_id, quarter`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query panel")
	}
	defer rows.Close()

	var out []model.PanelRow
	for rows.Next() {
		var (
			r      model.PanelRow
			q      int
			scheme int
			mv     sql.NullFloat64
			origin string
		)
		if err := rows.Scan(&r.CompanyID, &r.InstitutionID, &q, &r.Ratio, &scheme, &mv, &origin); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan panel row")
		}
		r.Quarter = quarter.Quarter(q)
		r.Scheme = model.Scheme(scheme)
		r.Origin = model.Origin(origin)
		if mv.Valid {
			r.MarketValue = model.Float(mv.Float64)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate panel")
}

func (s *SQLiteStore) SecurityPanel(ctx context.Context, f Filter) ([]model.Position, error) {
	where, args := sqliteWhere(f, "security_id")
	query := `SELECT security_id, holder_id, quarter, value, source, scheme, imputed, observed_at FROM security_panel` +
		where + ` ORDER BY security_id, holder_id, quarter, source`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query security panel")
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p        model.Position
			q        int
			scheme   int
			source   string
			observed sql.NullTime
		)
		if err := rows.Scan(&p.SecurityID, &p.HolderID, &q, &p.Value, &source, &scheme, &p.Imputed, &observed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan security panel row")
		}
		p.Quarter = quarter.Quarter(q)
		p.Scheme = model.Scheme(scheme)
		p.Source = model.SourceKind(source)
		if observed.Valid {
			p.ObservedAt = observed.Time.UTC()
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate security panel")
}

// Run journal

func (s *SQLiteStore) Start(ctx context.Context, runID uuid.UUID, stage string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		runID.String(), stage, runlog.StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start %s", stage)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: last insert id")
}

func (s *SQLiteStore) Complete(ctx context.Context, id int64, result *runlog.Result) error {
	var (
		rows int64
		meta sql.NullString
	)
	if result != nil {
		rows = result.Rows
		if result.Metadata != nil {
			b, err := json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal metadata")
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, row_count = ?, metadata = ? WHERE id = ?`,
		runlog.StatusComplete, time.Now().UTC(), rows, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete entry %d", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		runlog.StatusFailed, time.Now().UTC(), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail entry %d", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]runlog.Entry, error) {
	if limit <= 0 {
		limit = runlog.DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, started_at, completed_at, row_count, error, metadata
		 FROM run_log ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run log")
	}
	defer rows.Close()

	var entries []runlog.Entry
	for rows.Next() {
		var (
			e         runlog.Entry
			runID     string
			completed sql.NullTime
			errStr    sql.NullString
			meta      sql.NullString
		)
		if err := rows.Scan(&e.ID, &runID, &e.Stage, &e.Status, &e.StartedAt, &completed, &e.Rows, &errStr, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run log")
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse run id %q", runID)
		}
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		e.Error = errStr.String
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate run log")
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run log entry not found: %d", id)
	}
	return nil
}
