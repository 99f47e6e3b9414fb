package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/wallet"
)

// NewChannelsCommand creates the channels command.
func NewChannelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels [channel-id]",
		Short: "Show channel results",
		Long: `Print the derived result of one channel, or of every channel in the
wallet when no id is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, "channels", func(ctx context.Context, s *session) (*wallet.Response, error) {
				resp := wallet.NewResponse()
				if len(args) == 1 {
					id, err := parseChannelID(args[0])
					if err != nil {
						return nil, err
					}
					r, err := s.wallet.GetChannel(ctx, id)
					if err != nil {
						return nil, err
					}
					resp.AddChannelResult(r)
					return resp, nil
				}
				results, err := s.wallet.GetChannels(ctx)
				if err != nil {
					return nil, err
				}
				for _, r := range results {
					resp.AddChannelResult(r)
				}
				return resp, nil
			})
		},
	}
}

// NewObjectivesCommand creates the objectives command.
func NewObjectivesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "objectives",
		Short:         "List objectives",
		Long:          "List every objective in the wallet in creation order with its status.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				code, _ := classify(err)
				_ = formatter.Error(code, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to open wallet", err)
			}
			defer s.Close()

			objectives, err := s.wallet.GetObjectives(cmd.Context())
			if err != nil {
				return formatter.Fail("objectives failed", err)
			}
			if formatter.Format == "json" {
				if objectives == nil {
					objectives = []channel.Objective{}
				}
				return formatter.Success(objectives)
			}
			for _, o := range objectives {
				h := o.Header()
				fmt.Fprintf(formatter.Writer, "%s %s\n", h.ObjectiveID, h.Status)
			}
			return nil
		},
	}
}

// NewCrankCommand creates the crank command.
func NewCrankCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crank",
		Short: "Resume active objectives",
		Long: `Re-run every channel with an active objective. Use after a restart to
resend messages or deposits that were interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, "crank", func(ctx context.Context, s *session) (*wallet.Response, error) {
				return s.wallet.Crank(ctx)
			})
		},
	}
}

// MigrateResult is the output of the migrate command.
type MigrateResult struct {
	Driver        string `json:"driver"`
	SchemaVersion int    `json:"schema_version"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("%s database at schema version %d", r.Driver, r.SchemaVersion)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the wallet database",
		Long: `Open the configured database, applying the schema and any pending
migrations, and report the resulting schema version. No signing key is
needed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			logger := newLogger(rootOpts, cmd.ErrOrStderr())

			cfg, err := loadConfig(rootOpts, cmd)
			if err != nil {
				code, _ := classify(err)
				_ = formatter.Error(code, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			st, err := openStore(cfg, logger)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			version, err := st.SchemaVersion()
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to read schema version", err)
			}
			logger.Info("database ready", "driver", st.Driver(), "schema_version", version)
			return formatter.Success(MigrateResult{Driver: st.Driver(), SchemaVersion: version})
		},
	}
}
