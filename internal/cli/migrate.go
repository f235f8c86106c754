package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"servicehub/internal/migrate"
)

type MigrateOptions struct {
	*RootOptions
	Language string
	All      bool
	DryRun   bool
	Ledger   bool
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move catalog entries to canonical refs and prune dead copies",
		Long: `Migrate one language (--lang) or every catalog (--all).

Entries whose legacy id or canonical ref resolves keep their place and get
the canonical ref. Orphaned, dangling and unidentified entries are removed.
Every run is recorded in the migration ledger; --dry-run computes the
ledger without writing the catalog.

Examples:
  catalogctl migrate --lang en --dry-run
  catalogctl migrate --all --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Language == "" && !opts.All {
				return fmt.Errorf("one of --lang or --all is required")
			}
			if opts.Language != "" && opts.All {
				return fmt.Errorf("--lang and --all are mutually exclusive")
			}
			return runMigrate(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Language, "lang", "", "catalog language")
	cmd.Flags().BoolVar(&opts.All, "all", false, "migrate every catalog")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute without writing the catalog")
	cmd.Flags().BoolVar(&opts.Ledger, "ledger", false, "print every ledger entry in text output")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, opts *MigrateOptions) error {
	eng, err := opts.openEngine(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer eng.Close()

	runs, warning, err := eng.Migrate(ctx, opts.Language, opts.DryRun)
	if err != nil {
		return err
	}
	if warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(runs, func(w io.Writer) {
		for _, run := range runs {
			printRun(w, run, opts.Ledger)
		}
	})
}

func printRun(w io.Writer, run migrate.Run, withLedger bool) {
	mode := ""
	if run.DryRun {
		mode = " (dry run)"
	}
	by := ""
	if run.Operator != "" {
		by = " by=" + run.Operator
	}
	fmt.Fprintf(w, "%s%s: kept=%d changed=%d removed=%d persisted=%t run=%s%s\n",
		run.Language, mode, run.Kept, run.Changed, run.Removed, run.Persisted, run.ID, by)
	if !withLedger {
		return
	}
	for _, item := range run.Ledger {
		if item.Action == migrate.Keep && !item.Changed {
			continue
		}
		fmt.Fprintf(w, "  %3d %-6s %-12s %s/%s%s\n", item.Seq, item.Action, item.Reason, item.CategoryID, item.EntryName, inconsistentMark(item))
	}
}

func inconsistentMark(item migrate.LedgerEntry) string {
	if item.Inconsistent {
		return " (inconsistent)"
	}
	return ""
}
