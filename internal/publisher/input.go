package publisher

import (
	"context"
	"math/rand/v2"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/feed"
)

// FeedInputSource is the production InputSource: pair quotes come from the
// shared price-feed collaborator, random seeds from the process-wide CSPRNG
// source math/rand/v2 wraps.
type FeedInputSource struct {
	Feed feed.Client
}

// PairInput fetches pairID's current quote and adapts it to the calldata
// builder's input shape.
func (f *FeedInputSource) PairInput(ctx context.Context, pairID string) (abiresolver.PairInput, error) {
	data, err := f.Feed.GetAssetData(ctx, pairID)
	if err != nil {
		return abiresolver.PairInput{}, err
	}
	return abiresolver.PairInput{
		PairID:    pairID,
		Price:     data.Rate,
		Decimals:  data.Decimals,
		Timestamp: data.Timestamp,
	}, nil
}

// RandomSeed returns a fresh 64-bit seed, regenerated on every call so a
// retried attempt never reuses the previous attempt's randomness.
func (f *FeedInputSource) RandomSeed() uint64 {
	return rand.Uint64()
}
