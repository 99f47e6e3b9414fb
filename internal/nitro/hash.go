package nitro

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/roach88/chanwallet/internal/channel"
)

// Keccak returns the legacy Keccak-256 digest of the concatenated input.
func Keccak(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// ChannelID computes the channel identifier from its constants.
func ChannelID(c channel.Constants) (common.Hash, error) {
	if c.ChainID == nil {
		return common.Hash{}, fmt.Errorf("channel id: chain id is required")
	}
	if len(c.Participants) == 0 {
		return common.Hash{}, fmt.Errorf("channel id: no participants")
	}
	enc, err := args(tUint256, tAddresses, tUint256).Pack(
		c.ChainID,
		c.SigningAddresses(),
		new(big.Int).SetUint64(c.ChannelNonce),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("channel id: %w", err)
	}
	return Keccak(enc), nil
}

// AppPartHash hashes the application part of a state.
func AppPartHash(c channel.Constants, appData []byte) (common.Hash, error) {
	if appData == nil {
		appData = []byte{}
	}
	enc, err := args(tUint256, tAddress, tBytes).Pack(
		new(big.Int).SetUint64(c.ChallengeDuration),
		c.AppDefinition,
		appData,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("app part hash: %w", err)
	}
	return Keccak(enc), nil
}

// OutcomeHash hashes an outcome wrapped as bytes.
func OutcomeHash(o channel.Outcome) (common.Hash, error) {
	outcome, err := EncodeOutcome(o)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := args(tBytes).Pack(outcome)
	if err != nil {
		return common.Hash{}, fmt.Errorf("outcome hash: %w", err)
	}
	return Keccak(enc), nil
}

// HashState computes the state hash signed by participants.
func HashState(c channel.Constants, v channel.Vars) (common.Hash, error) {
	channelID, err := ChannelID(c)
	if err != nil {
		return common.Hash{}, err
	}
	appPart, err := AppPartHash(c, v.AppData)
	if err != nil {
		return common.Hash{}, err
	}
	outcome, err := OutcomeHash(v.Outcome)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := args(tVariablePart).Pack(variablePart{
		TurnNum:     new(big.Int).SetUint64(v.TurnNum),
		IsFinal:     v.IsFinal,
		ChannelId:   channelID,
		AppPartHash: appPart,
		OutcomeHash: outcome,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash state: %w", err)
	}
	return Keccak(enc), nil
}
