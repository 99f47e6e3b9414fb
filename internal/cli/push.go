package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chanwallet/internal/wallet"
)

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push [file]",
		Short: "Apply messages received from peers",
		Long: `Apply peer messages to the wallet. The input is a single message or a
JSON array of messages, as written by --outbox. With no file, or "-", the
messages are read from stdin.

Example:
  chanwallet push --db bob.db --private-key $KEY to-bob.json --outbox to-alice.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				_ = newFormatter(rootOpts, cmd).Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to read messages", err)
			}
			msgs, err := readMessages(data)
			if err != nil {
				_ = newFormatter(rootOpts, cmd).Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid messages", err)
			}
			return withSession(rootOpts, cmd, "push", func(ctx context.Context, s *session) (*wallet.Response, error) {
				resp := wallet.NewResponse()
				for _, m := range msgs {
					r, err := s.wallet.PushMessage(ctx, m)
					resp.Merge(r)
					if err != nil {
						return nil, fmt.Errorf("message from %s: %w", m.From, err)
					}
				}
				return resp, nil
			})
		},
	}
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
