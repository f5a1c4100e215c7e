package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ownership-cli/internal/fetcher"
	"github.com/sells-group/ownership-cli/internal/model"
)

// CSVSource reads a snapshot laid out as one CSV file per table in Dir.
// Fund holdings may be split over several files named fund_holdings*.csv;
// each file becomes at least one shard.
type CSVSource struct {
	Dir       string
	Delimiter rune
	// ShardSize bounds the distinct funds per shard. Zero keeps one shard
	// per file.
	ShardSize int
}

// NewCSVSource creates a CSVSource.
func NewCSVSource(dir string, shardSize int) *CSVSource {
	return &CSVSource{Dir: dir, ShardSize: shardSize}
}

func (s *CSVSource) path(table string) string {
	return filepath.Join(s.Dir, table+".csv")
}

// Load reads every table concurrently.
func (s *CSVSource) Load(ctx context.Context) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "snapshot.csv"), zap.String("dir", s.Dir))
	snap := &Snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Holders, err = loadCSV(gctx, s, TableHolders, decodeHolder)
		return err
	})
	g.Go(func() (err error) {
		snap.Securities, err = loadCSV(gctx, s, TableSecurities, decodeSecurity)
		return err
	})
	g.Go(func() (err error) {
		snap.FundLinks, err = loadCSV(gctx, s, TableFundLinks, decodeFundLink)
		return err
	})
	g.Go(func() (err error) {
		snap.FilerLinks, err = loadCSV(gctx, s, TableFilerLinks, decodeFilerLink)
		return err
	})
	g.Go(func() (err error) {
		snap.Filings, err = loadCSV(gctx, s, TableFilings, decodeFiling)
		return err
	})
	g.Go(func() (err error) {
		snap.Stakes, err = loadCSV(gctx, s, TableStakes, decodeStake)
		return err
	})
	g.Go(func() (err error) {
		snap.Prices, err = loadCSV(gctx, s, TablePrices, decodePrice)
		return err
	})
	g.Go(func() (err error) {
		snap.CompanyLinks, err = loadCSV(gctx, s, TableCompanyLinks, decodeCompanyLink)
		return err
	})
	g.Go(func() (err error) {
		snap.FundShards, err = s.loadFundShards(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logLoaded(log, snap)
	return snap, nil
}

func (s *CSVSource) loadFundShards(ctx context.Context) ([][]model.FundHolding, error) {
	files, err := filepath.Glob(filepath.Join(s.Dir, TableFundHoldings+"*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: glob fund holdings")
	}
	slices.Sort(files)

	var shards [][]model.FundHolding
	for _, f := range files {
		rows, err := readCSVFile(ctx, f, s.Delimiter, required[TableFundHoldings], decodeFundHolding)
		if err != nil {
			return nil, err
		}
		shards = append(shards, Shard(rows, s.ShardSize)...)
	}
	return shards, nil
}

// loadCSV reads one table. A missing optional table yields no rows.
func loadCSV[T any](ctx context.Context, s *CSVSource, table string, decode func(row) (T, error)) ([]T, error) {
	path := s.path(table)
	if _, err := os.Stat(path); os.IsNotExist(err) && optional[table] {
		zap.L().Debug("snapshot: optional table absent", zap.String("table", table))
		return nil, nil
	}
	return readCSVFile(ctx, path, s.Delimiter, required[table], decode)
}

func readCSVFile[T any](ctx context.Context, path string, delim rune, cols []string, decode func(row) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: open %s", filepath.Base(path))
	}
	defer f.Close() //nolint:errcheck

	var out []T
	err = fetcher.ReadAll(ctx, f, fetcher.CSVOptions{Delimiter: delim, Required: cols}, func(rec fetcher.Record) error {
		v, err := decode(rec)
		if err != nil {
			return eris.Wrapf(err, "snapshot: %s line %d", filepath.Base(path), rec.Line)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read %s", filepath.Base(path))
	}
	return out, nil
}
