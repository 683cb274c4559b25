// Package feed abstracts the external price-feed oracle collaborator:
// pair existence checks and {symbol, rate, decimals, timestamp} quotes.
//
// The publisher never talks HTTP directly to the feed: every caller goes
// through the Client interface, satisfied in production by the HTTP client
// in http_client.go and in tests by a hand-rolled fake.
package feed

import (
	"context"
	"math/big"
)

// AssetData is one pair's current quote.
type AssetData struct {
	Symbol    string
	Rate      *big.Int
	Decimals  uint8
	Timestamp int64
}

// Client is the price-feed collaborator.
type Client interface {
	IsPairExists(ctx context.Context, pairID string) (bool, error)
	GetAssetData(ctx context.Context, pairID string) (AssetData, error)
}
