// Package store persists ownership panels and the run journal to Postgres or
// to a local SQLite file.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// Filter narrows panel reads. Zero values match everything.
type Filter struct {
	From      quarter.Quarter `json:"from,omitempty"`
	To        quarter.Quarter `json:"to,omitempty"`
	CompanyID string          `json:"company_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// Span is the quarter range a run replaces. Rows of earlier runs inside it
// are deleted before the new rows are written. A zero Span only upserts.
type Span struct {
	From quarter.Quarter
	To   quarter.Quarter
}

// IsZero reports whether the span is unset.
func (s Span) IsZero() bool { return s.From == 0 && s.To == 0 }

// Store defines the persistence interface for pipeline output.
type Store interface {
	// Panels
	WritePanel(ctx context.Context, runID uuid.UUID, span Span, rows []model.PanelRow) (int64, error)
	WriteSecurityPanel(ctx context.Context, runID uuid.UUID, span Span, ps []model.Position) (int64, error)
	Panel(ctx context.Context, f Filter) ([]model.PanelRow, error)
	SecurityPanel(ctx context.Context, f Filter) ([]model.Position, error)

	// Run journal
	runlog.Journal

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

var panelColumns = []string{"company_id", "institution_id", "quarter", "ratio", "scheme", "market_value", "origin", "run_id"}

var securityPanelColumns = []string{"security_id", "holder_id", "quarter", "value", "source", "scheme", "imputed", "observed_at", "run_id"}

// The same pair can carry both a filing and a fund-sum row for a quarter.
var securityPanelKey = []string{"security_id", "holder_id", "quarter", "source"}

func panelValues(runID uuid.UUID, r model.PanelRow) []any {
	return []any{r.CompanyID, r.InstitutionID, int32(r.Quarter), r.Ratio, int16(r.Scheme), r.MarketValue, string(r.Origin), runID.String()}
}

func securityPanelValues(runID uuid.UUID, p model.Position) []any {
	var observed any
	if !p.ObservedAt.IsZero() {
		observed = p.ObservedAt
	}
	return []any{p.SecurityID, p.HolderID, int32(p.Quarter), p.Value, string(p.Source), int16(p.Scheme), p.Imputed, observed, runID.String()}
}
