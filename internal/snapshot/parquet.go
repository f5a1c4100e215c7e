package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/fetcher"
)

// ParquetSource reads a snapshot stored as one parquet file per table,
// using an in-memory DuckDB to scan the files.
type ParquetSource struct {
	Dir       string
	ShardSize int
}

// NewParquetSource creates a ParquetSource.
func NewParquetSource(dir string, shardSize int) *ParquetSource {
	return &ParquetSource{Dir: dir, ShardSize: shardSize}
}

// Load scans every table. DuckDB parallelises each scan internally, so
// tables are read one after another.
func (s *ParquetSource) Load(ctx context.Context) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "snapshot.parquet"), zap.String("dir", s.Dir))

	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: open duckdb")
	}
	db := sql.OpenDB(connector)
	defer db.Close() //nolint:errcheck

	snap := &Snapshot{}
	if snap.Holders, err = loadParquet(ctx, db, s.Dir, TableHolders, decodeHolder); err != nil {
		return nil, err
	}
	if snap.Securities, err = loadParquet(ctx, db, s.Dir, TableSecurities, decodeSecurity); err != nil {
		return nil, err
	}
	if snap.FundLinks, err = loadParquet(ctx, db, s.Dir, TableFundLinks, decodeFundLink); err != nil {
		return nil, err
	}
	if snap.FilerLinks, err = loadParquet(ctx, db, s.Dir, TableFilerLinks, decodeFilerLink); err != nil {
		return nil, err
	}
	if snap.Filings, err = loadParquet(ctx, db, s.Dir, TableFilings, decodeFiling); err != nil {
		return nil, err
	}
	if snap.Stakes, err = loadParquet(ctx, db, s.Dir, TableStakes, decodeStake); err != nil {
		return nil, err
	}
	if snap.Prices, err = loadParquet(ctx, db, s.Dir, TablePrices, decodePrice); err != nil {
		return nil, err
	}
	if snap.CompanyLinks, err = loadParquet(ctx, db, s.Dir, TableCompanyLinks, decodeCompanyLink); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(s.Dir, TableFundHoldings+"*.parquet"))
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: glob fund holdings")
	}
	slices.Sort(files)
	for _, f := range files {
		rows, err := scanParquet(ctx, db, f, required[TableFundHoldings], decodeFundHolding)
		if err != nil {
			return nil, err
		}
		snap.FundShards = append(snap.FundShards, Shard(rows, s.ShardSize)...)
	}

	logLoaded(log, snap)
	return snap, nil
}

func loadParquet[T any](ctx context.Context, db *sql.DB, dir, table string, decode func(row) (T, error)) ([]T, error) {
	path := filepath.Join(dir, table+".parquet")
	if _, err := os.Stat(path); os.IsNotExist(err) && optional[table] {
		return nil, nil
	}
	return scanParquet(ctx, db, path, required[table], decode)
}

// scanParquet reads every row of a parquet file and decodes it by column
// name.
func scanParquet[T any](ctx context.Context, db *sql.DB, path string, cols []string, decode func(row) (T, error)) ([]T, error) {
	name := filepath.Base(path)
	query := fmt.Sprintf("SELECT * FROM read_parquet(%s)", quoteLiteral(path))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: scan %s", name)
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: columns of %s", name)
	}
	if missing := fetcher.NewHeader(names).Missing(cols...); len(missing) > 0 {
		return nil, eris.Errorf("snapshot: %s lacks columns %s", name, strings.Join(missing, ", "))
	}
	for i := range names {
		names[i] = strings.ToLower(names[i])
	}

	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var out []T
	for n := 1; rows.Next(); n++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "snapshot: scan %s row %d", name, n)
		}
		r := make(parquetRow, len(names))
		for i, col := range names {
			r[col] = formatValue(vals[i])
		}
		v, err := decode(r)
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: %s row %d", name, n)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "snapshot: iterate %s", name)
}

// parquetRow holds one parquet record rendered as text.
type parquetRow map[string]string

// Get returns the trimmed value of a column, or "".
func (r parquetRow) Get(name string) string {
	return strings.TrimSpace(r[strings.ToLower(name)])
}

// formatValue renders a DuckDB scan value in the textual form the
// decoders accept. NULL becomes "".
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
		return fmt.Sprint(x)
	case duckdb.Decimal:
		return strconv.FormatFloat(x.Float64(), 'g', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
