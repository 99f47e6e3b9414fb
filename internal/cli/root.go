package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Outbox     string // file receiving peer messages as a JSON array
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chanwallet CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chanwallet",
		Short: "chanwallet - off-chain state channel wallet",
		Long: `A wallet for off-chain state channels.

Each command opens the wallet database, performs one operation and prints
the resulting channel results together with the messages that must be
delivered to peers. Messages are printed as JSON so any transport can carry
them; the receiving wallet feeds them back in with "chanwallet push".`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	pf.StringVar(&opts.Outbox, "outbox", "", "write messages for peers to this file as a JSON array")

	// Overrides for config keys; see config.FlagKeys.
	pf.String("db", "", "database DSN (file path for sqlite3)")
	pf.String("driver", "", "database driver (sqlite3|postgres)")
	pf.String("private-key", "", "hex secp256k1 signing key")
	pf.String("participant-id", "", "participant id announced to peers")
	pf.Int64("chain-id", 0, "chain id")
	pf.String("rpc-url", "", "chain service JSON-RPC endpoint (empty uses the in-memory chain)")
	pf.Int("pool-size", 0, "signing worker pool size (0 runs inline)")
	pf.Int("max-steps", 0, "engine step limit per channel")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewApproveCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewCloseCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewFundCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCrankCommand(opts))
	cmd.AddCommand(NewChannelsCommand(opts))
	cmd.AddCommand(NewObjectivesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger returns the diagnostic logger for a command. Logs always go to
// w so they never mix with JSON output.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newFormatter builds the formatter for cmd.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
