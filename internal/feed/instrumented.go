package feed

import (
	"context"

	"github.com/chainrelay/publisher/internal/metrics"
)

// InstrumentedClient wraps a Client and records every call against
// internal/metrics's sybil outcall counters.
type InstrumentedClient struct {
	inner   Client
	metrics *metrics.Registry
}

// NewInstrumentedClient wraps inner with metrics observation. Wrap the
// innermost HTTP/mock client first and CachedClient around the result, so a
// cache hit never counts as a fresh outcall.
func NewInstrumentedClient(inner Client, reg *metrics.Registry) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, metrics: reg}
}

func (c *InstrumentedClient) IsPairExists(ctx context.Context, pairID string) (bool, error) {
	exists, err := c.inner.IsPairExists(ctx, pairID)
	c.metrics.ObserveSybil("is_pair_exists", err)
	return exists, err
}

func (c *InstrumentedClient) GetAssetData(ctx context.Context, pairID string) (AssetData, error) {
	data, err := c.inner.GetAssetData(ctx, pairID)
	c.metrics.ObserveSybil("get_asset_data", err)
	return data, err
}
