package siwe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/numeric"
)

// HTTPClient verifies SIWE messages against an external verification
// service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a Verifier backed by an external HTTP service.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type verifyRequest struct {
	Message   string `json:"msg"`
	Signature string `json:"sig"`
}

type verifyResponse struct {
	Address string `json:"address"`
}

func (c *HTTPClient) Verify(ctx context.Context, message, signature string) (string, error) {
	body, err := json.Marshal(verifyRequest{Message: message, Signature: signature})
	if err != nil {
		return "", fmt.Errorf("siwe: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get_signer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("siwe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("siwe: request failed: %w: %w", domainerr.ErrSignerFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("siwe: status %d: %w", resp.StatusCode, domainerr.ErrSignerFailed)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("siwe: decode response: %w", err)
	}
	// The service reports the recovered address lowercased; re-render it in
	// the checksum form every store in this process keys by.
	return numeric.Normalize(out.Address)
}
