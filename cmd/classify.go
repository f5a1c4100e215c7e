package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/scheme"
)

var classifyShowExcluded int

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Show how snapshot pairs split across reconciliation schemes",
	Long:  "Loads the holder and security registries and every directly reported (security, holder) pair, then prints the pair count per scheme and the pairs no scheme admits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("classify"); err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx)
		if err != nil {
			return err
		}

		c := scheme.NewClassifier(snap.Holders, snap.Securities)
		part := c.Partition(snap.Pairs())
		if part.Total() == 0 && len(part.Excluded) == 0 {
			return eris.New("classify: snapshot holds no filings or stakes")
		}

		formatPartition(os.Stdout, part, classifyShowExcluded)
		return nil
	},
}

func init() {
	classifyCmd.Flags().IntVar(&classifyShowExcluded, "show-excluded", 20, "max excluded pairs to list (0 hides them)")
	rootCmd.AddCommand(classifyCmd)
}

// formatPartition writes per-scheme pair counts and up to limit excluded
// pairs to w.
func formatPartition(out io.Writer, part scheme.Partition, limit int) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCHEME\tNAME\tPAIRS")
	_, _ = fmt.Fprintln(w, "------\t----\t-----")
	for _, s := range model.Schemes {
		_, _ = p.Fprintf(w, "%d\t%s\t%d\n", int(s), s, part.Counts[s])
	}
	_, _ = p.Fprintf(w, "-\texcluded\t%d\n", len(part.Excluded))
	_, _ = p.Fprintf(w, "\ttotal\t%d\n", part.Total()+len(part.Excluded))
	_ = w.Flush()

	if limit <= 0 || len(part.Excluded) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Excluded pairs (unknown security, or unknown holder outside UK disclosure):")
	for i, pair := range part.Excluded {
		if i == limit {
			_, _ = p.Fprintf(out, "  ... and %d more\n", len(part.Excluded)-limit)
			break
		}
		_, _ = fmt.Fprintf(out, "  %s\t%s\n", pair.SecurityID, pair.HolderID)
	}
}
