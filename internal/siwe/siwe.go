// Package siwe verifies Sign-In-With-Ethereum messages submitted by
// subscribers as proof of wallet ownership for user-facing endpoints
// (subscribe, stop_sub, start_sub, ...), as distinct from the JWT-based
// admin auth in internal/apiserver.
package siwe

import (
	"context"
	"fmt"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/numeric"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier recovers the signing address from a SIWE message and its
// signature.
type Verifier interface {
	Verify(ctx context.Context, message, signature string) (string, error)
}

// LocalVerifier recovers the signer directly via EIP-191
// ("personal_sign") digest recovery, the scheme SIWE messages are signed
// under. It does not validate the message's domain, nonce or expiry
// window; those presentation-layer checks belong to the external
// verification service, and this type only recovers the address.
type LocalVerifier struct{}

// NewLocalVerifier returns a Verifier with no external dependency, useful
// for tests and single-binary deployments.
func NewLocalVerifier() LocalVerifier { return LocalVerifier{} }

func (LocalVerifier) Verify(_ context.Context, message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("siwe: recover signer: %w", err)
	}

	addr := crypto.PubkeyToAddress(*pub)
	return numeric.Normalize(addr.Hex())
}

func decodeSignature(hexSig string) ([]byte, error) {
	if len(hexSig) < 2 || hexSig[:2] != "0x" {
		hexSig = "0x" + hexSig
	}
	raw, err := hexutil.Decode(hexSig)
	if err != nil {
		return nil, fmt.Errorf("siwe: decode signature: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("siwe: signature must be 65 bytes, got %d: %w", len(raw), domainerr.ErrInvalidAddress)
	}
	// go-ethereum expects v in {0,1}; wallets produce {27,28}.
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	return raw, nil
}
