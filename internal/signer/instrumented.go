package signer

import (
	"context"
	"math/big"

	"github.com/chainrelay/publisher/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// InstrumentedSigner wraps a Signer and records every call against
// internal/metrics's sybil outcall counters, since the signing
// collaborator is an external call just like the price feed, not a chain
// RPC.
type InstrumentedSigner struct {
	inner   Signer
	metrics *metrics.Registry
}

// NewInstrumentedSigner wraps inner with metrics observation.
func NewInstrumentedSigner(inner Signer, reg *metrics.Registry) *InstrumentedSigner {
	return &InstrumentedSigner{inner: inner, metrics: reg}
}

func (s *InstrumentedSigner) Sign(ctx context.Context, digest [32]byte) (*big.Int, *big.Int, error) {
	r, sVal, err := s.inner.Sign(ctx, digest)
	s.metrics.ObserveSybil("sign", err)
	return r, sVal, err
}

func (s *InstrumentedSigner) PublicAddress(ctx context.Context) (common.Address, error) {
	addr, err := s.inner.PublicAddress(ctx)
	s.metrics.ObserveSybil("public_address", err)
	return addr, err
}
