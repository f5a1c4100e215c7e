// Package snapshot loads the vendor input tables the ownership engine
// consumes: registries, link tables, position sources and prices.
package snapshot

import (
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/model"
)

// Snapshot is one immutable load of every input table.
type Snapshot struct {
	Holders      []model.Holder
	Securities   []model.Security
	FundLinks    []model.FundLink
	FilerLinks   []model.FilerLink
	Filings      []model.Filing
	Stakes       []model.Stake
	FundShards   [][]model.FundHolding // one or more shards per fund holdings table
	Prices       []model.Price
	CompanyLinks []model.CompanyLink
}

// Source loads a snapshot.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Table names, shared by the CSV and parquet layouts.
const (
	TableHolders      = "holders"
	TableSecurities   = "securities"
	TableFundLinks    = "fund_links"
	TableFilerLinks   = "filer_links"
	TableFilings      = "filings"
	TableStakes       = "stakes"
	TableFundHoldings = "fund_holdings"
	TablePrices       = "prices"
	TableCompanyLinks = "company_links"
)

// Counts reports rows per table, for logging and the run log.
func (s *Snapshot) Counts() map[string]int {
	funds := 0
	for _, sh := range s.FundShards {
		funds += len(sh)
	}
	return map[string]int{
		TableHolders:      len(s.Holders),
		TableSecurities:   len(s.Securities),
		TableFundLinks:    len(s.FundLinks),
		TableFilerLinks:   len(s.FilerLinks),
		TableFilings:      len(s.Filings),
		TableStakes:       len(s.Stakes),
		TableFundHoldings: funds,
		TablePrices:       len(s.Prices),
		TableCompanyLinks: len(s.CompanyLinks),
	}
}

// Pairs returns the distinct (security, holder) pairs reported directly by
// holders, in first-seen order: filings then stakes.
func (s *Snapshot) Pairs() []model.Pair {
	seen := map[model.Pair]struct{}{}
	var out []model.Pair
	add := func(p model.Pair) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, f := range s.Filings {
		add(model.Pair{SecurityID: f.SecurityID, HolderID: f.HolderID})
	}
	for _, st := range s.Stakes {
		add(model.Pair{SecurityID: st.SecurityID, HolderID: st.HolderID})
	}
	return out
}

// Validate checks that the tables every run needs are present.
func (s *Snapshot) Validate() error {
	var missing []string
	if len(s.Holders) == 0 {
		missing = append(missing, TableHolders)
	}
	if len(s.Securities) == 0 {
		missing = append(missing, TableSecurities)
	}
	if len(s.Filings) == 0 && len(s.Stakes) == 0 && len(s.FundShards) == 0 {
		missing = append(missing, "positions")
	}
	if len(missing) > 0 {
		return eris.Errorf("snapshot: empty tables: %v", missing)
	}
	return nil
}

// Shard splits fund holdings into shards that each cover at most maxFunds
// distinct funds. All rows of a fund land in the same shard, in input
// order. maxFunds <= 0 returns a single shard.
func Shard(rows []model.FundHolding, maxFunds int) [][]model.FundHolding {
	if len(rows) == 0 {
		return nil
	}
	if maxFunds <= 0 {
		return [][]model.FundHolding{slices.Clone(rows)}
	}

	shardOf := map[string]int{}
	var shards [][]model.FundHolding
	for _, r := range rows {
		i, ok := shardOf[r.FundID]
		if !ok {
			i = len(shardOf) / maxFunds
			shardOf[r.FundID] = i
			if i == len(shards) {
				shards = append(shards, nil)
			}
		}
		shards[i] = append(shards[i], r)
	}
	return shards
}

func logLoaded(log *zap.Logger, snap *Snapshot) {
	counts := snap.Counts()
	fields := make([]zap.Field, 0, len(counts)+1)
	for _, t := range slices.Sorted(maps.Keys(counts)) {
		fields = append(fields, zap.Int(t, counts[t]))
	}
	fields = append(fields, zap.Int("fund_shards", len(snap.FundShards)))
	log.Info("snapshot loaded", fields...)
}

// Open returns the Source for the configured snapshot format.
func Open(cfg config.SnapshotConfig) (Source, error) {
	switch cfg.Format {
	case FormatCSV, "":
		return NewCSVSource(cfg.Dir, cfg.FundShardSize), nil
	case FormatParquet:
		return NewParquetSource(cfg.Dir, cfg.FundShardSize), nil
	default:
		return nil, eris.Errorf("snapshot: unknown format %q", cfg.Format)
	}
}

// Snapshot formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)
