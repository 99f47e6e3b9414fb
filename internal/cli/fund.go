package cli

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/roach88/chanwallet/internal/wallet"
)

// FundOptions holds flags for the fund command.
type FundOptions struct {
	*RootOptions
	AssetHolder string
	Amount      string
}

// NewFundCommand creates the fund command.
func NewFundCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FundOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fund <channel-id>",
		Short: "Report on-chain holdings for a channel",
		Long: `Record the amount an asset holder currently holds for a channel, as
observed on chain, and advance any objective waiting on it. The in-memory
chain does not persist between commands, so holdings observed elsewhere are
reported with this command.

Example:
  chanwallet fund --db bob.db --private-key $KEY 0x<channel-id> --amount 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			id, err := parseChannelID(args[0])
			if err != nil {
				_ = formatter.Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}
			assetHolder, err := parseAddress(opts.AssetHolder)
			if err != nil {
				_ = formatter.Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}
			amount, err := parseAmount(opts.Amount)
			if err != nil {
				_ = formatter.Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid argument", err)
			}
			return withSession(rootOpts, cmd, "fund", func(ctx context.Context, s *session) (*wallet.Response, error) {
				return s.wallet.UpdateFundingForChannels(ctx, []wallet.FundingUpdate{{
					ChannelID:   id,
					AssetHolder: assetHolder,
					Amount:      amount,
				}})
			})
		},
	}

	cmd.Flags().StringVar(&opts.AssetHolder, "asset-holder", common.Address{}.Hex(), "asset holder address")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "total amount held for the channel")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
