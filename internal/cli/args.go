package cli

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
)

// parseChannelID parses a 0x-prefixed 32-byte channel id.
func parseChannelID(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid channel id %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid channel id %q: want %d bytes, got %d", s, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// parseAddress parses a 0x-prefixed 20-byte address.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseParticipant parses "id=0xaddress". The destination is the address
// left-padded to 32 bytes.
func parseParticipant(s string) (channel.Participant, error) {
	id, addr, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return channel.Participant{}, fmt.Errorf("invalid participant %q: want id=0xaddress", s)
	}
	a, err := parseAddress(addr)
	if err != nil {
		return channel.Participant{}, fmt.Errorf("participant %s: %w", id, err)
	}
	return channel.Participant{
		ParticipantID:  id,
		SigningAddress: a,
		Destination:    common.BytesToHash(a.Bytes()),
	}, nil
}

// parseAmount parses a non-negative decimal or 0x-prefixed integer.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	return v, nil
}

// buildOutcome allocates amounts[i] of the asset held by assetHolder to
// participants[i].
func buildOutcome(assetHolder common.Address, participants []channel.Participant, amounts []string) (channel.Outcome, error) {
	if len(amounts) != len(participants) {
		return nil, fmt.Errorf("need one amount per participant: got %d amounts for %d participants", len(amounts), len(participants))
	}
	allocs := make([]channel.Allocation, len(participants))
	for i, p := range participants {
		amt, err := parseAmount(amounts[i])
		if err != nil {
			return nil, err
		}
		allocs[i] = channel.Allocation{Destination: p.Destination, Amount: amt}
	}
	return channel.Outcome{{AssetHolder: assetHolder, Allocations: allocs}}, nil
}
