// Package signer abstracts the threshold-ECDSA signing collaborator that
// holds the publisher's single shared identity, the publisher master
// account (PMA). The publisher never holds a private key
// itself: every outgoing transaction is handed to this collaborator as an
// unsigned digest and comes back as an (r, s) pair, with the recovery id
// resolved locally by trying both candidates against the known PMA address.
package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces raw (r, s) signatures over a 32-byte digest. It never
// sees gas price, nonce, or calldata; those are the caller's concern. This
// collaborator only signs hashes.
type Signer interface {
	// Sign returns the r and s components of an ECDSA signature over digest.
	Sign(ctx context.Context, digest [32]byte) (r, s *big.Int, err error)
	// PublicAddress returns the signer's known on-chain address (the PMA).
	PublicAddress(ctx context.Context) (common.Address, error)
}

// ResolveRecoveryID tries each candidate recovery id against the expected
// signer address and returns whichever one recovers correctly. Candidates
// are raw ids in the {0, 1} form crypto.SigToPub accepts (see
// LegacyRecoveryCandidates); any chain-id offset is applied afterwards by
// the transaction signer the result is attached with.
func ResolveRecoveryID(digest [32]byte, r, s *big.Int, candidates []byte, expected common.Address) (byte, error) {
	for _, v := range candidates {
		sig := make([]byte, 65)
		r.FillBytes(sig[:32])
		s.FillBytes(sig[32:64])
		sig[64] = v

		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == expected {
			return v, nil
		}
	}
	return 0, fmt.Errorf("signer: no recovery id in %v recovers to %s: %w", candidates, expected, domainerr.ErrSignerFailed)
}

// LegacyRecoveryCandidates are the two values tried for a pre-EIP-1559
// legacy transaction's v byte before chain-id offsetting.
var LegacyRecoveryCandidates = []byte{0, 1}
