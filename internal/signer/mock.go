package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Mock is a deterministic in-process signer backed by a real ECDSA key,
// used in tests in place of the HTTP-backed threshold signer: same
// interface as the production collaborator, no network call, fully
// reproducible signatures.
type Mock struct {
	key *ecdsa.PrivateKey
}

// NewMock derives a deterministic signer from seed (tests should pass a
// fixed value so the resulting PMA address is stable across runs).
func NewMock(seed []byte) (*Mock, error) {
	key, err := crypto.ToECDSA(padTo32(seed))
	if err != nil {
		return nil, err
	}
	return &Mock{key: key}, nil
}

func (m *Mock) Sign(ctx context.Context, digest [32]byte) (*big.Int, *big.Int, error) {
	sig, err := crypto.Sign(digest[:], m.key)
	if err != nil {
		return nil, nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	return r, s, nil
}

func (m *Mock) PublicAddress(ctx context.Context) (common.Address, error) {
	return crypto.PubkeyToAddress(m.key.PublicKey), nil
}

func padTo32(seed []byte) []byte {
	if len(seed) > 32 {
		seed = seed[len(seed)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(seed):], seed)
	if isZero(out) {
		out[31] = 1
	}
	return out
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
