package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/model"
)

func fh(fund string) model.FundHolding {
	return model.FundHolding{FundID: fund, SecurityID: "S"}
}

func TestShard(t *testing.T) {
	rows := []model.FundHolding{fh("A"), fh("B"), fh("A"), fh("C"), fh("D"), fh("B"), fh("E")}

	shards := Shard(rows, 2)
	require.Len(t, shards, 3)
	assert.Equal(t, []model.FundHolding{fh("A"), fh("B"), fh("A"), fh("B")}, shards[0])
	assert.Equal(t, []model.FundHolding{fh("C"), fh("D")}, shards[1])
	assert.Equal(t, []model.FundHolding{fh("E")}, shards[2])

	one := Shard(rows, 0)
	require.Len(t, one, 1)
	assert.Len(t, one[0], len(rows))

	assert.Nil(t, Shard(nil, 5))
}

func TestSnapshotPairs(t *testing.T) {
	s := &Snapshot{
		Filings: []model.Filing{{HolderID: "H1", SecurityID: "S1"}, {HolderID: "H1", SecurityID: "S1"}},
		Stakes:  []model.Stake{{HolderID: "H2", SecurityID: "S1"}, {HolderID: "H1", SecurityID: "S1"}},
	}
	assert.Equal(t, []model.Pair{{SecurityID: "S1", HolderID: "H1"}, {SecurityID: "S1", HolderID: "H2"}}, s.Pairs())
}

func TestSnapshotValidate(t *testing.T) {
	err := (&Snapshot{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holders")

	ok := &Snapshot{
		Holders:    []model.Holder{{ID: "H"}},
		Securities: []model.Security{{ID: "S"}},
		Stakes:     []model.Stake{{HolderID: "H", SecurityID: "S"}},
	}
	assert.NoError(t, ok.Validate())
}

func TestSnapshotCounts(t *testing.T) {
	s := &Snapshot{FundShards: [][]model.FundHolding{{fh("A")}, {fh("B"), fh("C")}}}
	c := s.Counts()
	assert.Equal(t, 3, c[TableFundHoldings])
	assert.Equal(t, 0, c[TableHolders])
}

func TestOpen(t *testing.T) {
	src, err := Open(config.SnapshotConfig{Format: "csv", Dir: "x"})
	require.NoError(t, err)
	assert.IsType(t, &CSVSource{}, src)

	src, err = Open(config.SnapshotConfig{Format: "parquet", Dir: "x"})
	require.NoError(t, err)
	assert.IsType(t, &ParquetSource{}, src)

	_, err = Open(config.SnapshotConfig{Format: "json"})
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	d, err := parseDate("20210110")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("10/01/2021")
	assert.Error(t, err)

	v, err := parseFloat("NA")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseFloat("0")
	require.NoError(t, err)
	require.NotNil(t, v, "zero is a value, not null")
	assert.Equal(t, 0.0, *v)

	_, err = parseFloat("1,000")
	assert.Error(t, err)

	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"Y", true, false},
		{"true", true, false},
		{"1", true, false},
		{"", false, false},
		{"N", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := parseBool(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
