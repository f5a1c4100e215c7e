package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ownership-cli/internal/model"
)

// Sheet names used in exported workbooks.
const (
	SheetPanel     = "panel"
	SheetPositions = "security_panel"
)

func headerRow(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

// WriteXLSX saves the result as a workbook with a company panel sheet and
// a security panel sheet. Numeric columns are written as numbers.
func WriteXLSX(path string, res Result) error {
	f := xlsx.NewFile()

	panel, err := f.AddSheet(SheetPanel)
	if err != nil {
		return eris.Wrap(err, "xlsx: add panel sheet")
	}
	headerRow(panel, PanelHeader)
	for _, r := range res.Panel {
		addPanelRow(panel, r)
	}

	positions, err := f.AddSheet(SheetPositions)
	if err != nil {
		return eris.Wrap(err, "xlsx: add positions sheet")
	}
	headerRow(positions, PositionHeader)
	for _, p := range res.Positions {
		addPositionRow(positions, p)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addPanelRow(sheet *xlsx.Sheet, r model.PanelRow) {
	row := sheet.AddRow()
	row.AddCell().SetString(r.CompanyID)
	row.AddCell().SetString(r.InstitutionID)
	row.AddCell().SetInt(int(r.Quarter))
	row.AddCell().SetFloat(r.Ratio)
	row.AddCell().SetInt(int(r.Scheme))
	mv := row.AddCell()
	if r.MarketValue != nil {
		mv.SetFloat(*r.MarketValue)
	}
	row.AddCell().SetString(string(r.Origin))
}

func addPositionRow(sheet *xlsx.Sheet, p model.Position) {
	row := sheet.AddRow()
	row.AddCell().SetString(p.SecurityID)
	row.AddCell().SetString(p.HolderID)
	row.AddCell().SetInt(int(p.Quarter))
	row.AddCell().SetFloat(p.Value)
	row.AddCell().SetString(string(p.Source))
	obs := row.AddCell()
	if !p.ObservedAt.IsZero() {
		obs.SetString(p.ObservedAt.Format("2006-01-02"))
	}
	row.AddCell().SetInt(int(p.Scheme))
	row.AddCell().SetBool(p.Imputed)
}
