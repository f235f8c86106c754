package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"servicehub/internal/reconcile"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var change string

	cmd := &cobra.Command{
		Use:   "sync <canonical-ref>",
		Short: "Push a stored canonical service into every catalog copy",
		Long: `Re-run the reconciler for one service as if it had just changed.

Examples:
  catalogctl sync 6f1c...
  catalogctl sync 6f1c... --change deleted   # list stale copies`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := reconcile.ParseChangeKind(change)
			if err != nil {
				return err
			}

			eng, err := rootOpts.openEngine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.Sync(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s): %d catalogs updated\n", res.CanonicalRef, res.Change, res.UpdatedCatalogCount)
				for _, d := range res.PerCatalogDiffs {
					for _, e := range d.Entries {
						for _, fc := range e.Changes {
							fmt.Fprintf(w, "  %s %s/%s %s: %q -> %q\n", d.Language, e.CategoryID, e.EntryName, fc.Field, fc.Before, fc.After)
						}
					}
				}
				for _, s := range res.Stale {
					fmt.Fprintf(w, "  stale %s %s/%s\n", s.Language, s.CategoryID, s.EntryName)
				}
			})
		},
	}

	cmd.Flags().StringVar(&change, "change", string(reconcile.Updated), "change kind (created|updated|deleted|statusChanged)")
	return cmd
}
