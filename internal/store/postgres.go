package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/db"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// PostgresStore implements Store on the ownership schema.
type PostgresStore struct {
	*runlog.Log
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pool and wraps it.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	s := newPostgresStore(pool)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{Log: runlog.NewLog(pool), pool: pool}
}

// Pool exposes the underlying pool for commands that need raw access.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) WritePanel(ctx context.Context, runID uuid.UUID, span Span, rows []model.PanelRow) (int64, error) {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = panelValues(runID, r)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:   "ownership.panel",
		Columns: panelColumns,
		Key:     []string{"company_id", "institution_id", "quarter"},
		Replace: pgReplace(span),
	}, vals)
	return n, eris.Wrap(err, "postgres: write panel")
}

func (s *PostgresStore) WriteSecurityPanel(ctx context.Context, runID uuid.UUID, span Span, ps []model.Position) (int64, error) {
	vals := make([][]any, len(ps))
	for i, p := range ps {
		vals[i] = securityPanelValues(runID, p)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:   "ownership.security_panel",
		Columns: securityPanelColumns,
		Key:     securityPanelKey,
		Replace: pgReplace(span),
	}, vals)
	return n, eris.Wrap(err, "postgres: write security panel")
}

func pgReplace(span Span) *db.Delete {
	if span.IsZero() {
		return nil
	}
	return &db.Delete{Where: "quarter BETWEEN $1 AND $2", Args: []any{int32(span.From), int32(span.To)}}
}

func (s *PostgresStore) Panel(ctx context.Context, f Filter) ([]model.PanelRow, error) {
	where, args := pgWhere(f, "company_id")
	query := `SELECT company_id, institution_id, quarter, ratio, scheme, market_value, origin
		 FROM ownership.panel` + where + ` ORDER BY company_id, institution_id, quarter` + pgLimit(f, &args)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query panel")
	}
	defer rows.Close()

	var out []model.PanelRow
	for rows.Next() {
		var (
			r      model.PanelRow
			q      int32
			scheme int16
			origin string
		)
		if err := rows.Scan(&r.CompanyID, &r.InstitutionID, &q, &r.Ratio, &scheme, &r.MarketValue, &origin); err != nil {
			return nil, eris.Wrap(err, "postgres: scan panel row")
		}
		r.Quarter = quarter.Quarter(q)
		r.Scheme = model.Scheme(scheme)
		r.Origin = model.Origin(origin)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate panel")
}

func (s *PostgresStore) SecurityPanel(ctx context.Context, f Filter) ([]model.Position, error) {
	where, args := pgWhere(f, "security_id")
	query := `SELECT security_id, holder_id, quarter, value, source, scheme, imputed, observed_at
		 FROM ownership.security_panel` + where + ` ORDER BY security_id, holder_id, quarter, source` + pgLimit(f, &args)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query security panel")
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p        model.Position
			q        int32
			scheme   int16
			source   string
			observed *time.Time
		)
		if err := rows.Scan(&p.SecurityID, &p.HolderID, &q, &p.Value, &source, &scheme, &p.Imputed, &observed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan security panel row")
		}
		p.Quarter = quarter.Quarter(q)
		p.Scheme = model.Scheme(scheme)
		p.Source = model.SourceKind(source)
		if observed != nil {
			p.ObservedAt = *observed
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate security panel")
}

// pgWhere renders the filter as a WHERE clause with positional args. idCol is
// the column CompanyID filters on.
func pgWhere(f Filter, idCol string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != 0 {
		args = append(args, int32(f.From))
		conds = append(conds, fmt.Sprintf("quarter >= $%d", len(args)))
	}
	if f.To != 0 {
		args = append(args, int32(f.To))
		conds = append(conds, fmt.Sprintf("quarter <= $%d", len(args)))
	}
	if f.CompanyID != "" {
		args = append(args, f.CompanyID)
		conds = append(conds, fmt.Sprintf("%s = $%d", idCol, len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pgLimit(f Filter, args *[]any) string {
	if f.Limit <= 0 {
		return ""
	}
	*args = append(*args, f.Limit)
	return fmt.Sprintf(" LIMIT $%d", len(*args))
}
