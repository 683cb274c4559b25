package feebridge

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/feed"
)

type fakeFeed struct {
	rate *big.Int
	err  error
}

func (f *fakeFeed) IsPairExists(ctx context.Context, pairID string) (bool, error) { return true, nil }

func (f *fakeFeed) GetAssetData(ctx context.Context, pairID string) (feed.AssetData, error) {
	if f.err != nil {
		return feed.AssetData{}, f.err
	}
	return feed.AssetData{Symbol: "MATIC", Rate: f.rate, Decimals: 6, Timestamp: 1}, nil
}

func TestFeeViaSymbol(t *testing.T) {
	// rate = 1 USDT per native unit (1e6 cents) -> fee = 6.75e4 * 1e18 / 1e6
	b := New(&fakeFeed{rate: big.NewInt(1_000_000)})
	fee, err := b.Fee(context.Background(), ChainFee{Symbol: "MATIC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Div(new(big.Int).Mul(FeeUSDCents, weiPerNative), big.NewInt(1_000_000))
	if fee.Cmp(want) != 0 {
		t.Fatalf("fee = %s, want %s", fee, want)
	}
}

func TestFeeFixedFallback(t *testing.T) {
	b := New(&fakeFeed{})
	fee, err := b.Fee(context.Background(), ChainFee{Fixed: big.NewInt(42)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("fee = %s, want 42", fee)
	}
}

func TestFeeMissingBothIsHardError(t *testing.T) {
	b := New(&fakeFeed{})
	_, err := b.Fee(context.Background(), ChainFee{})
	if !errors.Is(err, domainerr.ErrFeedMissing) {
		t.Fatalf("expected ErrFeedMissing, got %v", err)
	}
}

func TestFeeNonPositiveRate(t *testing.T) {
	b := New(&fakeFeed{rate: big.NewInt(0)})
	_, err := b.Fee(context.Background(), ChainFee{Symbol: "MATIC"})
	if !errors.Is(err, domainerr.ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}
