// Package rollup aggregates fund and filer positions up to their managing
// institution.
package rollup

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/reconcile"
)

// FundKey identifies one fund's holding of a security in a quarter.
type FundKey struct {
	FundID     string
	SecurityID string
	Quarter    quarter.Quarter
}

func compareFundKeys(a, b FundKey) int {
	if c := cmp.Compare(a.FundID, b.FundID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SecurityID, b.SecurityID); c != 0 {
		return c
	}
	return cmp.Compare(a.Quarter, b.Quarter)
}

// Stats summarises a roll-up.
type Stats struct {
	Shards        int
	Rows          int
	FundCells     int // (fund, security, quarter) cells after reduction
	NoValue       int // cells with a null fund value
	UnmappedFunds int
	Cells         int // (institution, security, quarter) cells emitted
	NonPositive   int // summed cells dropped for being <= 0
}

// Roller folds fund shards into institution-level positions.
type Roller struct {
	links   map[string]string
	valuer  *reconcile.Valuer
	workers int
	log     *zap.Logger
}

// New builds a Roller. workers bounds how many shards are reduced at once;
// zero or less means one per shard.
func New(links []model.FundLink, valuer *reconcile.Valuer, workers int) *Roller {
	m := make(map[string]string, len(links))
	for _, l := range links {
		m[l.FundID] = l.InstitutionID
	}
	return &Roller{
		links:   m,
		valuer:  valuer,
		workers: workers,
		log:     zap.L().With(zap.String("component", "rollup")),
	}
}

// Institution returns the institution managing a fund.
func (r *Roller) Institution(fundID string) (string, bool) {
	id, ok := r.links[fundID]
	return id, ok
}

func (r *Roller) reading(h model.FundHolding) reconcile.Reading {
	return reconcile.Reading{At: h.ReportDate, Primary: r.valuer.Fund(h), Secondary: h.ReportedQuantity}
}

func fundKey(h model.FundHolding) FundKey {
	return FundKey{FundID: h.FundID, SecurityID: h.SecurityID, Quarter: quarter.FromDate(h.ReportDate)}
}

// Latest reduces every shard to the latest report per fund cell and merges
// the partials in shard order. The merge picks the latest again, so the
// result does not depend on how funds were split across shards.
func (r *Roller) Latest(ctx context.Context, shards [][]model.FundHolding) (map[FundKey]model.FundHolding, error) {
	partials := make([]map[FundKey]model.FundHolding, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, shard := range shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrapf(err, "rollup: reduce shard %d", i)
			}
			partials[i] = reconcile.Latest(shard, fundKey, r.reading)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := map[FundKey]model.FundHolding{}
	for _, p := range partials {
		out = reconcile.Merge(out, p, r.reading)
	}
	return out, nil
}

// FundPositions values the reduced fund cells. HolderID on the returned
// positions is the fund id. Cells with a null value are skipped.
func (r *Roller) FundPositions(cells map[FundKey]model.FundHolding) ([]model.Position, int) {
	keys := slices.SortedFunc(maps.Keys(cells), compareFundKeys)
	out := make([]model.Position, 0, len(keys))
	noValue := 0
	for _, k := range keys {
		h := cells[k]
		v := r.valuer.Fund(h)
		if v == nil {
			noValue++
			continue
		}
		out = append(out, model.Position{
			SecurityID: k.SecurityID,
			HolderID:   k.FundID,
			Quarter:    k.Quarter,
			Value:      *v,
			Source:     model.SourceFundSum,
			ObservedAt: h.ReportDate,
		})
	}
	return out, noValue
}

// Fold reduces, values and sums fund shards into one position per
// (security, institution, quarter). Funds without an institution are
// dropped and counted.
func (r *Roller) Fold(ctx context.Context, shards [][]model.FundHolding) ([]model.Position, Stats, error) {
	st := Stats{Shards: len(shards)}
	for _, s := range shards {
		st.Rows += len(s)
	}

	cells, err := r.Latest(ctx, shards)
	if err != nil {
		return nil, st, err
	}
	st.FundCells = len(cells)

	funds, noValue := r.FundPositions(cells)
	st.NoValue = noValue

	out, sum := Sum(funds, r.Institution, model.SourceFundSum)
	st.UnmappedFunds = sum.Unmapped
	st.NonPositive = sum.NonPositive
	st.Cells = len(out)

	r.log.Debug("funds rolled up",
		zap.Int("shards", st.Shards),
		zap.Int("rows", st.Rows),
		zap.Int("fund_cells", st.FundCells),
		zap.Int("unmapped_funds", st.UnmappedFunds),
		zap.Int("cells", st.Cells),
	)
	return out, st, nil
}
