package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/export"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/store"
)

var (
	exportFrom    string
	exportTo      string
	exportCompany string
	exportOut     string
	exportLimit   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored panels to CSV or XLSX",
	Long:  "Reads the company panel and the security panel back from the store for a quarter range and writes them to a .csv or .xlsx file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		f, err := exportFilter()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		panel, err := st.Panel(ctx, f)
		if err != nil {
			return eris.Wrap(err, "export: read panel")
		}
		// The company filter names a company, which the security panel
		// does not carry.
		posFilter := f
		posFilter.CompanyID = ""
		positions, err := st.SecurityPanel(ctx, posFilter)
		if err != nil {
			return eris.Wrap(err, "export: read security panel")
		}

		files, err := export.ToFile(exportOut, export.Result{Panel: panel, Positions: positions})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		zap.L().Info("panel exported",
			zap.Strings("files", files),
			zap.Int("panel_rows", len(panel)),
			zap.Int("security_rows", len(positions)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "quarter", "", "first quarter to export (YYYYMM or a date)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last quarter to export; defaults to --quarter")
	exportCmd.Flags().StringVar(&exportCompany, "company", "", "only export this company")
	exportCmd.Flags().StringVar(&exportOut, "out", "ownership.csv", "output file (.csv or .xlsx)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max rows per panel (0 means all)")
	_ = exportCmd.MarkFlagRequired("quarter")
	rootCmd.AddCommand(exportCmd)
}

// exportFilter turns the export flags into a store filter.
func exportFilter() (store.Filter, error) {
	from, err := quarter.Parse(exportFrom)
	if err != nil {
		return store.Filter{}, eris.Wrap(err, "export: --quarter")
	}
	to := from
	if exportTo != "" {
		if to, err = quarter.Parse(exportTo); err != nil {
			return store.Filter{}, eris.Wrap(err, "export: --to")
		}
	}
	if to < from {
		return store.Filter{}, eris.Errorf("export: --to %s is before --quarter %s", to, from)
	}
	return store.Filter{From: from, To: to, CompanyID: exportCompany, Limit: exportLimit}, nil
}
