package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune     // default ','
	Comment    rune     // comment character (0 = none)
	LazyQuotes bool
	Required   []string // columns the header must contain
}

// Header maps lower-cased column names to field positions.
type Header map[string]int

// NewHeader indexes a header row. Names are trimmed, lower-cased and
// stripped of a UTF-8 byte order mark.
func NewHeader(cols []string) Header {
	h := make(Header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	return h
}

// Missing returns the names not present in the header.
func (h Header) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := h[strings.ToLower(n)]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Record is one data row with access by column name.
type Record struct {
	Line   int
	Fields []string
	header Header
}

// Get returns the trimmed field for a column, or "" when the column or
// field is absent.
func (r Record) Get(name string) string {
	i, ok := r.header[strings.ToLower(name)]
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

// StreamCSV reads a headed CSV and sends data rows to a channel. The caller
// must drain the record channel; the error channel carries at most one
// error. Both close when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	recCh := make(chan Record, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		cols, err := reader.Read()
		if err == io.EOF {
			errCh <- eris.New("csv: missing header row")
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		header := NewHeader(cols)
		if missing := header.Missing(opts.Required...); len(missing) > 0 {
			errCh <- eris.Errorf("csv: header lacks columns %s", strings.Join(missing, ", "))
			return
		}

		for {
			fields, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			line, _ := reader.FieldPos(0)

			select {
			case recCh <- Record{Line: line, Fields: fields, header: header}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// ReadAll drains StreamCSV, applying fn to every record. fn errors stop
// the read and are returned.
func ReadAll(ctx context.Context, r io.Reader, opts CSVOptions, fn func(Record) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := StreamCSV(ctx, r, opts)
	for rec := range recCh {
		if err := fn(rec); err != nil {
			cancel()
			for range recCh {
			}
			return err
		}
	}
	return <-errCh
}
