// Package cli implements catalogctl, the operator command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"servicehub/pkg/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	GRPCAddr   string // when set, engine commands go to a grpc-server
	Token      string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Operate the service catalog reconciliation engine",
		Long: `catalogctl migrates and audits per-language catalogs, re-syncs
canonical services into them, and seeds the stores.

Engine commands run against the local database unless --grpc points
at a running grpc-server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("SERVICEHUB_CONFIG"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.GRPCAddr, "grpc", "", "grpc-server address for remote operation")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("SERVICEHUB_TOKEN"), "admin bearer token for --grpc")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// config loads the YAML/env config and applies --db on top.
func (o *RootOptions) config() (utils.Config, error) {
	cfg, err := utils.LoadConfig(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	return cfg, nil
}
