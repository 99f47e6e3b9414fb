package store

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/chanwallet/internal/channel"
)

// Column encodings. Hashes and addresses are 0x-hex, big integers decimal,
// structured values JSON.

func marshalParticipants(p []channel.Participant) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal participants: %w", err)
	}
	return string(data), nil
}

func unmarshalParticipants(data string) ([]channel.Participant, error) {
	var p []channel.Participant
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return p, nil
}

func marshalOutcome(o channel.Outcome) (string, error) {
	if o == nil {
		o = channel.Outcome{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal outcome: %w", err)
	}
	return string(data), nil
}

func unmarshalOutcome(data string) (channel.Outcome, error) {
	var o channel.Outcome
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return o, nil
}

func marshalBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func unmarshalBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func marshalBytes(b []byte) string {
	return hexutil.Encode(b)
}

func unmarshalBytes(s string) (hexutil.Bytes, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func marshalHash(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func unmarshalHash(s string) common.Hash {
	if s == "" {
		return common.Hash{}
	}
	return common.HexToHash(s)
}
