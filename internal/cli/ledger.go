package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"servicehub/internal/migrate"
)

type LedgerOptions struct {
	*RootOptions
	Language string
	Limit    int
}

func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger [run-id]",
		Short: "Show a migration run's change ledger, or a language's recent runs",
		Long: `With a run id, print every ledger entry of that run. With --lang, list the
most recent runs for that catalog, newest first.

Examples:
  catalogctl ledger 7c0e7f5e-3a7c-4a8e-9d55-1f0a6f9b2c11
  catalogctl ledger --lang en --limit 5`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (opts.Language != "") {
				return fmt.Errorf("give either a run id or --lang")
			}
			if opts.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			eng, err := opts.openEngine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			if opts.Language != "" {
				runs, err := eng.ListRuns(cmd.Context(), opts.Language, opts.Limit)
				if err != nil {
					return err
				}
				if runs == nil {
					runs = []migrate.Run{}
				}
				return out.Success(runs, func(w io.Writer) {
					if len(runs) == 0 {
						fmt.Fprintf(w, "no migration runs for %s\n", opts.Language)
					}
					for _, run := range runs {
						printRun(w, run, false)
					}
				})
			}

			run, err := eng.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("migration run %s not found", args[0])
			}

			return out.Success(run, func(w io.Writer) {
				printRun(w, *run, false)
				for _, item := range run.Ledger {
					changed := ""
					if item.Changed {
						changed = " *"
					}
					fmt.Fprintf(w, "  %3d %-6s %-12s %s/%s%s%s\n",
						item.Seq, item.Action, item.Reason, item.CategoryID, item.EntryName, changed, inconsistentMark(item))
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Language, "lang", "", "list recent runs for this catalog language")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list with --lang")

	return cmd
}
