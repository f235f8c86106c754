package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"servicehub/internal/audit"
)

type AuditOptions struct {
	*RootOptions
	Language string
	CSVPath  string
	Strict   bool
}

func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report migration progress and broken catalog entries",
		Long: `Audit one language (--lang) or every catalog. Nothing is written.

Examples:
  catalogctl audit
  catalogctl audit --lang en --csv issues.csv
  catalogctl audit --strict   # exit non-zero when any issue is found`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			reports, sum, err := eng.Audit(cmd.Context(), opts.Language)
			if err != nil {
				return err
			}

			if opts.CSVPath != "" {
				if err := writeIssuesCSV(opts.CSVPath, reports); err != nil {
					return fmt.Errorf("write csv: %w", err)
				}
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			data := map[string]any{"reports": reports, "summary": sum}
			if err := out.Success(data, func(w io.Writer) { printAudit(w, reports, sum) }); err != nil {
				return err
			}

			if opts.Strict && sumIssues(sum) > 0 {
				return fmt.Errorf("audit found %d issues", sumIssues(sum))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Language, "lang", "", "catalog language (default: all)")
	cmd.Flags().StringVar(&opts.CSVPath, "csv", "", "also write issues to this CSV file")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when any issue is found")

	return cmd
}

func sumIssues(s audit.Summary) int {
	n := 0
	for _, c := range s.Issues {
		n += c
	}
	return n
}

func printAudit(w io.Writer, reports []audit.Report, sum audit.Summary) {
	for _, rep := range reports {
		fmt.Fprintf(w, "%s: total=%d canonical=%d legacy_only=%d valid=%d migrated=%.1f%% valid=%.1f%%\n",
			rep.Language, rep.Total, rep.WithCanonicalRef, rep.LegacyOnly, rep.ValidCanonicalRefs,
			rep.MigrationPercentage, rep.ValidityPercentage)
		for _, is := range rep.Issues {
			fmt.Fprintf(w, "  %-12s %s/%s\n", is.Kind, is.CategoryID, is.EntryName)
		}
	}
	if len(reports) > 1 {
		fmt.Fprintf(w, "all %d languages: total=%d migrated=%.1f%% valid=%.1f%% issues=%d\n",
			sum.Languages, sum.Total, sum.MigrationPercentage, sum.ValidityPercentage, sumIssues(sum))
	}
}

func writeIssuesCSV(path string, reports []audit.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"language", "kind", "category_id", "entry_name"}); err != nil {
		return err
	}
	for _, rep := range reports {
		for _, is := range rep.Issues {
			if err := w.Write([]string{rep.Language, string(is.Kind), is.CategoryID, is.EntryName}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
