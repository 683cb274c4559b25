package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/rpcretry"
)

// HTTPClient reaches the external price-feed service over HTTP, retrying
// transient failures through internal/rpcretry like every other outbound
// RPC in the publisher.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a Client backed by an external HTTP price feed.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type assetDataResponse struct {
	Symbol    string `json:"symbol"`
	Rate      string `json:"rate"`
	Decimals  uint8  `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

func (c *HTTPClient) IsPairExists(ctx context.Context, pairID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pair_exists?pair_id="+url.QueryEscape(pairID), nil)
	if err != nil {
		return false, fmt.Errorf("feed: build request: %w", err)
	}

	result, err := rpcretry.Do(ctx, func(ctx context.Context) (bool, error) {
		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			return false, domainerr.AsTransport(fmt.Errorf("feed: request failed: %w", err))
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("feed: status %d: %w", resp.StatusCode, domainerr.ErrFeedUnavailable)
		}
		var out struct {
			Exists bool `json:"exists"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, fmt.Errorf("feed: decode response: %w", err)
		}
		return out.Exists, nil
	})
	return result, err
}

func (c *HTTPClient) GetAssetData(ctx context.Context, pairID string) (AssetData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/asset_data?pair_id="+url.QueryEscape(pairID), nil)
	if err != nil {
		return AssetData{}, fmt.Errorf("feed: build request: %w", err)
	}

	return rpcretry.Do(ctx, func(ctx context.Context) (AssetData, error) {
		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			return AssetData{}, domainerr.AsTransport(fmt.Errorf("feed: request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return AssetData{}, fmt.Errorf("feed: pair %q: %w", pairID, domainerr.ErrFeedMissing)
		}
		if resp.StatusCode != http.StatusOK {
			return AssetData{}, fmt.Errorf("feed: status %d: %w", resp.StatusCode, domainerr.ErrFeedUnavailable)
		}

		var out assetDataResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return AssetData{}, fmt.Errorf("feed: decode response: %w", err)
		}
		rate, ok := new(big.Int).SetString(out.Rate, 10)
		if !ok {
			return AssetData{}, fmt.Errorf("feed: malformed rate %q: %w", out.Rate, domainerr.ErrFeedUnavailable)
		}
		return AssetData{Symbol: out.Symbol, Rate: rate, Decimals: out.Decimals, Timestamp: out.Timestamp}, nil
	})
}
