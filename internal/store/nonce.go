package store

import (
	"context"
	"errors"
	"fmt"
)

// NonceError is raised when an allocated nonce collides with an existing
// channel for the same participant set.
type NonceError struct {
	SignerSet string
	Nonce     uint64
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("nonce %d already used for participants %s", e.Nonce, e.SignerSet)
}

// IsNonceError returns true if err wraps a NonceError.
func IsNonceError(err error) bool {
	var ne *NonceError
	return errors.As(err, &ne)
}

// NextNonce allocates the next channel nonce for an ordered participant
// set. Values are strictly increasing per set, starting at 1.
func (t *Tx) NextNonce(ctx context.Context, signerSet string) (uint64, error) {
	_, err := t.exec(ctx, `
		INSERT INTO nonces (signer_set, value) VALUES (?, 1)
		ON CONFLICT (signer_set) DO UPDATE SET value = nonces.value + 1
	`, signerSet)
	if err != nil {
		return 0, fmt.Errorf("next nonce: %w", err)
	}
	var v uint64
	if err := t.queryRow(ctx, `SELECT value FROM nonces WHERE signer_set = ?`, signerSet).Scan(&v); err != nil {
		return 0, fmt.Errorf("next nonce: %w", err)
	}
	return v, nil
}

// UseNonce raises the allocator for a participant set to at least nonce, so
// channels learned from peers are never reused locally.
func (t *Tx) UseNonce(ctx context.Context, signerSet string, nonce uint64) error {
	_, err := t.exec(ctx, `
		INSERT INTO nonces (signer_set, value) VALUES (?, ?)
		ON CONFLICT (signer_set) DO UPDATE SET value =
			CASE WHEN excluded.value > nonces.value THEN excluded.value ELSE nonces.value END
	`, signerSet, nonce)
	if err != nil {
		return fmt.Errorf("use nonce: %w", err)
	}
	return nil
}
