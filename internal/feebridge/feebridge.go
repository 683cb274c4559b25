// Package feebridge converts the platform's fixed USD-denominated fee into
// a chain's native unit at settle time, via the external price-feed
// collaborator.
package feebridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/feed"
)

// FeeUSDCents is the platform fee, in 6-decimal USDT cents.
var FeeUSDCents = big.NewInt(6_75_00)

// weiPerNative is the 1e18 scale every EVM chain's native unit uses.
var weiPerNative = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Bridge computes the native-unit fee for a chain, optionally through the
// price feed.
type Bridge struct {
	feed feed.Client
}

// New returns a Bridge backed by the given price-feed client.
func New(client feed.Client) *Bridge {
	return &Bridge{feed: client}
}

// ChainFee is the subset of chain configuration the bridge needs: either a
// symbol (converted via the feed) or a fixed fee override, plus the
// process-wide USD fee that symbol conversion starts from.
type ChainFee struct {
	Symbol   string
	Fixed    *big.Int // nil means "use Symbol"
	USDCents *big.Int // nil means "use the FeeUSDCents default"
}

// Fee resolves cf's native-unit fee: Symbol/USDT rate via the feed if set,
// otherwise the fixed override. Missing both is a hard error.
func (b *Bridge) Fee(ctx context.Context, cf ChainFee) (*big.Int, error) {
	if cf.Symbol != "" {
		asset, err := b.feed.GetAssetData(ctx, cf.Symbol+"/USDT")
		if err != nil {
			return nil, fmt.Errorf("feebridge: %s/USDT: %w", cf.Symbol, err)
		}
		if asset.Rate == nil || asset.Rate.Sign() <= 0 {
			return nil, fmt.Errorf("feebridge: %s/USDT: non-positive rate: %w", cf.Symbol, domainerr.ErrFeedUnavailable)
		}
		usd := cf.USDCents
		if usd == nil {
			usd = FeeUSDCents
		}
		// fee = usd_fee * 1e18 / rate
		numerator := new(big.Int).Mul(usd, weiPerNative)
		return new(big.Int).Div(numerator, asset.Rate), nil
	}
	if cf.Fixed != nil {
		return new(big.Int).Set(cf.Fixed), nil
	}
	return nil, fmt.Errorf("feebridge: chain has neither symbol nor fixed fee: %w", domainerr.ErrFeedMissing)
}
