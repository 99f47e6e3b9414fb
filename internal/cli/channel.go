package cli

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/handlers"
	"github.com/roach88/chanwallet/internal/wallet"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Participants      []string
	Amounts           []string
	AssetHolder       string
	AppDefinition     string
	AppData           string
	ChallengeDuration uint64
	FundingStrategy   string
	LedgerChannelID   string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Propose a new channel",
		Long: `Propose a new channel to its participants.

Participants are listed in channel order as id=0xaddress; this wallet's
address must be one of them. Amounts are allocated to participants in the
same order.

Example:
  chanwallet create --db alice.db --private-key $KEY \
    --participant alice=0xAb.. --participant bob=0xCd.. \
    --amount 5 --amount 5 --funding Direct --outbox to-bob.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Participants, "participant", nil, "participant as id=0xaddress, in channel order (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Amounts, "amount", nil, "allocation per participant, in channel order (repeatable)")
	cmd.Flags().StringVar(&opts.AssetHolder, "asset-holder", common.Address{}.Hex(), "asset holder address of the allocated asset")
	cmd.Flags().StringVar(&opts.AppDefinition, "app-definition", common.Address{}.Hex(), "application contract address")
	cmd.Flags().StringVar(&opts.AppData, "app-data", "", "initial application data (0x hex)")
	cmd.Flags().Uint64Var(&opts.ChallengeDuration, "challenge-duration", 86400, "challenge duration in seconds")
	cmd.Flags().StringVar(&opts.FundingStrategy, "funding", "", "funding strategy (Direct|Ledger|Virtual|Fake|Unfunded); defaults to the configured strategy")
	cmd.Flags().StringVar(&opts.LedgerChannelID, "ledger", "", "ledger channel id for the Ledger strategy")
	_ = cmd.MarkFlagRequired("participant")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	return withSession(opts.RootOptions, cmd, "create", func(ctx context.Context, s *session) (*wallet.Response, error) {
		args, err := opts.toArgs(s)
		if err != nil {
			return nil, err
		}
		return s.wallet.CreateChannel(ctx, args)
	})
}

func (o *CreateOptions) toArgs(s *session) (wallet.CreateChannelArgs, error) {
	var args wallet.CreateChannelArgs

	participants := make([]channel.Participant, len(o.Participants))
	for i, raw := range o.Participants {
		p, err := parseParticipant(raw)
		if err != nil {
			return args, err
		}
		if p.SigningAddress == s.wallet.Address() && s.cfg.Destination != "" {
			p.Destination = common.HexToHash(s.cfg.Destination)
		}
		participants[i] = p
	}

	assetHolder, err := parseAddress(o.AssetHolder)
	if err != nil {
		return args, err
	}
	outcome, err := buildOutcome(assetHolder, participants, o.Amounts)
	if err != nil {
		return args, err
	}
	appDef, err := parseAddress(o.AppDefinition)
	if err != nil {
		return args, err
	}
	var appData hexutil.Bytes
	if o.AppData != "" {
		if appData, err = hexutil.Decode(o.AppData); err != nil {
			return args, fmt.Errorf("invalid app data: %w", err)
		}
	}

	strategy := s.cfg.FundingStrategy()
	if o.FundingStrategy != "" {
		strategy = channel.FundingStrategy(o.FundingStrategy)
	}
	var ledger common.Hash
	if o.LedgerChannelID != "" {
		if ledger, err = parseChannelID(o.LedgerChannelID); err != nil {
			return args, err
		}
	}

	return wallet.CreateChannelArgs{
		ChainID:           s.cfg.ChainID(),
		Participants:      participants,
		Outcome:           outcome,
		AppDefinition:     appDef,
		AppData:           appData,
		ChallengeDuration: o.ChallengeDuration,
		FundingStrategy:   strategy,
		LedgerChannelID:   ledger,
	}, nil
}

// channelCommand builds a command taking a single channel id argument.
func channelCommand(rootOpts *RootOptions, use, short, long string, run func(ctx context.Context, s *session, id common.Hash) (*wallet.Response, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <channel-id>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChannelID(args[0])
			if err != nil {
				_ = newFormatter(rootOpts, cmd).Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}
			return withSession(rootOpts, cmd, use, func(ctx context.Context, s *session) (*wallet.Response, error) {
				return run(ctx, s, id)
			})
		},
	}
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return channelCommand(rootOpts, "join", "Join a proposed channel",
		`Approve the pending OpenChannel objective of a channel received from a
peer and sign its opening state.`,
		func(ctx context.Context, s *session, id common.Hash) (*wallet.Response, error) {
			return s.wallet.JoinChannel(ctx, id)
		})
}

// NewCloseCommand creates the close command.
func NewCloseCommand(rootOpts *RootOptions) *cobra.Command {
	return channelCommand(rootOpts, "close", "Close a running channel",
		`Sign a final state carrying the latest outcome and start the
CloseChannel objective. Only possible on my turn.`,
		func(ctx context.Context, s *session, id common.Hash) (*wallet.Response, error) {
			return s.wallet.CloseChannel(ctx, id)
		})
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return channelCommand(rootOpts, "sync", "Re-send channel states to peers",
		`Send every stored state of the channel to each peer together with a
request for their copy, so both sides converge after lost messages.`,
		func(ctx context.Context, s *session, id common.Hash) (*wallet.Response, error) {
			return s.wallet.SyncChannel(ctx, id)
		})
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <objective-id>",
		Short: "Approve a pending objective",
		Long: `Approve a pending objective by id, e.g. OpenChannel-0x...
Approving an OpenChannel objective is the same as joining its channel.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, "approve", func(ctx context.Context, s *session) (*wallet.Response, error) {
				return s.wallet.ApproveObjective(ctx, args[0])
			})
		},
	}
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Amounts     []string
	AssetHolder string
	AppData     string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <channel-id>",
		Short: "Sign the next application state",
		Long: `Sign the next state of a running channel. Amounts replace the
allocations of the first asset in participant order; omitted flags keep the
current outcome and app data.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChannelID(args[0])
			if err != nil {
				_ = newFormatter(rootOpts, cmd).Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}
			return withSession(rootOpts, cmd, "update", func(ctx context.Context, s *session) (*wallet.Response, error) {
				current, err := s.wallet.GetChannel(ctx, id)
				if err != nil {
					return nil, err
				}
				update, err := opts.toArgs(cmd, current)
				if err != nil {
					return nil, err
				}
				return s.wallet.UpdateChannel(ctx, id, update)
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Amounts, "amount", nil, "allocation per participant, in channel order (repeatable)")
	cmd.Flags().StringVar(&opts.AssetHolder, "asset-holder", "", "asset holder address (defaults to the current first asset)")
	cmd.Flags().StringVar(&opts.AppData, "app-data", "", "application data (0x hex)")

	return cmd
}

func (o *UpdateOptions) toArgs(cmd *cobra.Command, current channel.Result) (handlers.UpdateArgs, error) {
	args := handlers.UpdateArgs{Outcome: current.Outcome, AppData: current.AppData}

	if len(o.Amounts) > 0 {
		var assetHolder common.Address
		if len(current.Outcome) > 0 {
			assetHolder = current.Outcome[0].AssetHolder
		}
		if o.AssetHolder != "" {
			a, err := parseAddress(o.AssetHolder)
			if err != nil {
				return args, err
			}
			assetHolder = a
		}
		outcome, err := buildOutcome(assetHolder, current.Participants, o.Amounts)
		if err != nil {
			return args, err
		}
		args.Outcome = outcome
	}

	if cmd.Flags().Changed("app-data") {
		data, err := hexutil.Decode(o.AppData)
		if err != nil {
			return args, fmt.Errorf("invalid app data: %w", err)
		}
		args.AppData = data
	}
	return args, nil
}
