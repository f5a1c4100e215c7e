// Package export writes ownership panels to CSV or XLSX files for analysts.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/model"
)

// Column headers of the two panels.
var (
	PanelHeader    = []string{"company_id", "institution_id", "quarter", "ownership_ratio", "scheme", "market_value", "origin"}
	PositionHeader = []string{"security_id", "holder_id", "quarter", "value", "source_kind", "observation_date", "scheme", "imputed"}
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func panelRecord(r model.PanelRow) []string {
	mv := ""
	if r.MarketValue != nil {
		mv = formatFloat(*r.MarketValue)
	}
	return []string{
		r.CompanyID,
		r.InstitutionID,
		r.Quarter.String(),
		formatFloat(r.Ratio),
		strconv.Itoa(int(r.Scheme)),
		mv,
		string(r.Origin),
	}
}

func positionRecord(p model.Position) []string {
	observed := ""
	if !p.ObservedAt.IsZero() {
		observed = p.ObservedAt.Format("2006-01-02")
	}
	return []string{
		p.SecurityID,
		p.HolderID,
		p.Quarter.String(),
		formatFloat(p.Value),
		string(p.Source),
		observed,
		strconv.Itoa(int(p.Scheme)),
		strconv.FormatBool(p.Imputed),
	}
}

// PanelCSV writes the company-level panel as CSV with a header row.
func PanelCSV(w io.Writer, rows []model.PanelRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PanelHeader); err != nil {
		return eris.Wrap(err, "export: write panel header")
	}
	for _, r := range rows {
		if err := cw.Write(panelRecord(r)); err != nil {
			return eris.Wrap(err, "export: write panel row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush panel")
}

// PositionsCSV writes the security-level panel as CSV with a header row.
func PositionsCSV(w io.Writer, ps []model.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PositionHeader); err != nil {
		return eris.Wrap(err, "export: write position header")
	}
	for _, p := range ps {
		if err := cw.Write(positionRecord(p)); err != nil {
			return eris.Wrap(err, "export: write position row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush positions")
}

// Result is what a run produced: the company panel and, always, the
// security-level positions behind it.
type Result struct {
	Panel     []model.PanelRow
	Positions []model.Position
}

// ToFile writes a result to path, choosing the format by extension. An
// .xlsx file gets one sheet per panel. A .csv file gets the company panel,
// or the security-level positions when there is no company panel (the
// shares measure), with the positions also written next to it as
// <name>_positions.csv.
func ToFile(path string, res Result) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return []string{path}, WriteXLSX(path, res)
	case ".csv":
		if len(res.Panel) == 0 {
			return []string{path}, writeCSVFile(path, func(w io.Writer) error { return PositionsCSV(w, res.Positions) })
		}
		if err := writeCSVFile(path, func(w io.Writer) error { return PanelCSV(w, res.Panel) }); err != nil {
			return nil, err
		}
		posPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_positions.csv"
		if err := writeCSVFile(posPath, func(w io.Writer) error { return PositionsCSV(w, res.Positions) }); err != nil {
			return []string{path}, err
		}
		return []string{path, posPath}, nil
	default:
		return nil, eris.Errorf("export: unsupported file type %q", filepath.Ext(path))
	}
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
