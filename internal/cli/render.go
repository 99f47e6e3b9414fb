package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/wallet"
)

// printResponse writes resp in the configured format. When outboxPath is
// set the outbox is also written there as a JSON array, ready for push.
func printResponse(f *OutputFormatter, resp *wallet.Response, outboxPath string) error {
	if outboxPath != "" {
		if err := writeOutbox(outboxPath, resp.Outbox); err != nil {
			_ = f.Error(ErrCodeInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write outbox", err)
		}
		f.VerboseLog("wrote %d message(s) to %s", len(resp.Outbox), outboxPath)
	}

	if f.Format == "json" {
		return f.Success(resp)
	}

	for _, r := range resp.ChannelResults {
		writeResultLine(f.Writer, r)
	}
	for _, id := range resp.CompletedObjectives {
		fmt.Fprintf(f.Writer, "completed %s\n", id)
	}
	for _, m := range resp.Outbox {
		line, err := json.Marshal(m)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode message", err)
		}
		fmt.Fprintf(f.Writer, "%s\n", line)
	}
	return nil
}

func writeResultLine(w io.Writer, r channel.Result) {
	ids := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		ids[i] = p.ParticipantID
	}
	fmt.Fprintf(w, "%s %s turn=%d participants=%s\n", r.ChannelID.Hex(), r.Status, r.TurnNum, strings.Join(ids, ","))
}

func writeOutbox(path string, msgs []channel.Message) error {
	if msgs == nil {
		msgs = []channel.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write outbox %s: %w", path, err)
	}
	return nil
}

// readMessages decodes a single message or a JSON array of messages.
func readMessages(data []byte) ([]channel.Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("no messages in input")
	}
	if strings.HasPrefix(trimmed, "[") {
		var msgs []channel.Message
		if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		return msgs, nil
	}
	var m channel.Message
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return []channel.Message{m}, nil
}
