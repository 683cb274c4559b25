package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
)

// HTTPClient calls out to an external threshold-ECDSA signing service
// over HTTP. It holds no key material locally.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	address common.Address
}

// NewHTTPClient returns a client bound to a signing service and the PMA
// address it is expected to produce signatures for.
func NewHTTPClient(baseURL string, address common.Address, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		address: address,
		client:  &http.Client{Timeout: timeout},
	}
}

type signRequest struct {
	Digest string `json:"digest_hex"`
}

type signResponse struct {
	R string `json:"r_hex"`
	S string `json:"s_hex"`
}

func (c *HTTPClient) Sign(ctx context.Context, digest [32]byte) (*big.Int, *big.Int, error) {
	body, err := json.Marshal(signRequest{Digest: hex.EncodeToString(digest[:])})
	if err != nil {
		return nil, nil, fmt.Errorf("signer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("signer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: request failed: %w: %w", domainerr.ErrSignerFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("signer: status %d: %w", resp.StatusCode, domainerr.ErrSignerFailed)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("signer: decode response: %w", err)
	}

	rBytes, err := hex.DecodeString(out.R)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: bad r: %w", err)
	}
	sBytes, err := hex.DecodeString(out.S)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: bad s: %w", err)
	}

	return new(big.Int).SetBytes(rBytes), new(big.Int).SetBytes(sBytes), nil
}

func (c *HTTPClient) PublicAddress(ctx context.Context) (common.Address, error) {
	return c.address, nil
}
