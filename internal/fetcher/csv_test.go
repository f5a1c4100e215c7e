package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, recCh <-chan Record, errCh <-chan error) ([]Record, error) {
	t.Helper()
	var recs []Record
	for r := range recCh {
		recs = append(recs, r)
	}
	return recs, <-errCh
}

func TestStreamCSV_ByColumnName(t *testing.T) {
	input := "\ufeffSecurity_ID, holder_id ,report_date\nS1,H1,2020-03-15\nS2,H2\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Required: []string{"security_id", "holder_id"},
	})
	recs, err := collect(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "S1", recs[0].Get("security_id"))
	assert.Equal(t, "H1", recs[0].Get("HOLDER_ID"))
	assert.Equal(t, "2020-03-15", recs[0].Get("report_date"))
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, "", recs[1].Get("report_date"), "short row")
	assert.Equal(t, "", recs[1].Get("no_such_column"))
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	input := "a|b\n1|2\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})
	recs, err := collect(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].Get("b"))
}

func TestStreamCSV_MissingColumns(t *testing.T) {
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n"), CSVOptions{
		Required: []string{"a", "c", "d"},
	})
	_, err := collect(t, recCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header lacks columns c, d")
}

func TestStreamCSV_Empty(t *testing.T) {
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	_, err := collect(t, recCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestStreamCSV_MalformedRow(t *testing.T) {
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n\"1,2\n"), CSVOptions{})
	_, err := collect(t, recCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b,c\n")
	for range 10000 {
		sb.WriteString("1,2,3\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	recCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})
	<-recCh
	cancel()

	for range recCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadAll(t *testing.T) {
	var ids []string
	err := ReadAll(context.Background(), strings.NewReader("id\nx\ny\n"), CSVOptions{}, func(r Record) error {
		ids = append(ids, r.Get("id"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)
}

func TestReadAll_CallbackError(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id\n")
	for range 2000 {
		sb.WriteString("x\n")
	}
	stop := errors.New("stop")
	calls := 0
	err := ReadAll(context.Background(), strings.NewReader(sb.String()), CSVOptions{}, func(Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestHeader_Missing(t *testing.T) {
	h := NewHeader([]string{"A", "b"})
	assert.Empty(t, h.Missing("a", "B"))
	assert.Equal(t, []string{"c"}, h.Missing("a", "c"))
}
