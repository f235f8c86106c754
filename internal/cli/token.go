package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"servicehub/internal/auth"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		operator string
		role     string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator bearer token from the configured secret",
		Example: `  catalogctl token --operator alice
  curl -H "Authorization: Bearer $(catalogctl token)" localhost:8080/admin/catalogs/audit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.config()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.JWTDuration
			}
			ts := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, ttl)
			tok, exp, err := ts.Sign(operator, role)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(map[string]any{"token": tok, "expires_at": exp.UTC()}, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "catalogctl", "operator name (token subject)")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}
