package publisher

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/metrics"
	"github.com/chainrelay/publisher/internal/multicall"
	"github.com/chainrelay/publisher/internal/signer"
)

// EthclientDriverSet lazily dials each registered chain's RPC endpoint and
// caches the resulting multicall.Driver, one persistent connection per
// chain (the at-most-one-in-flight-transaction-per-chain assumption
// relies on a single shared connection, not a pool).
type EthclientDriverSet struct {
	chains  *chainreg.Registry
	signer  signer.Signer
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	drivers map[string]*multicall.Driver
}

// NewEthclientDriverSet returns a DriverSet that dials chains on demand. A
// nil metricsReg disables RPC outcall instrumentation (used by tests that
// have no registry of their own).
func NewEthclientDriverSet(chains *chainreg.Registry, s signer.Signer, logger *zap.Logger, metricsReg *metrics.Registry) *EthclientDriverSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthclientDriverSet{
		chains:  chains,
		signer:  s,
		logger:  logger,
		metrics: metricsReg,
		drivers: make(map[string]*multicall.Driver),
	}
}

// Driver returns the cached driver for chainID, dialing its RPC endpoint
// the first time it is requested.
func (d *EthclientDriverSet) Driver(chainID *big.Int) (Driver, error) {
	key := chainID.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if driver, ok := d.drivers[key]; ok {
		return driver, nil
	}

	chain, err := d.chains.Get(chainID)
	if err != nil {
		return nil, fmt.Errorf("publisher: driver for chain %s: %w", key, err)
	}

	client, err := ethclient.Dial(chain.RPC)
	if err != nil {
		return nil, fmt.Errorf("publisher: dial chain %s: %w", key, err)
	}

	var chainClient multicall.ChainClient = client
	if d.metrics != nil {
		chainClient = instrumentedChainClient{inner: client, metrics: d.metrics}
	}

	driver := multicall.New(chainClient, d.signer, chainID, d.logger)
	d.drivers[key] = driver
	return driver, nil
}

// instrumentedChainClient wraps an ethclient.Client and records every call
// against internal/metrics's RPC outcall counters, without requiring
// internal/multicall itself to know metrics exists.
type instrumentedChainClient struct {
	inner   multicall.ChainClient
	metrics *metrics.Registry
}

func (c instrumentedChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.inner.PendingNonceAt(ctx, account)
	c.metrics.ObserveRPC("eth_getTransactionCount", err)
	return nonce, err
}

func (c instrumentedChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.inner.SuggestGasPrice(ctx)
	c.metrics.ObserveRPC("eth_gasPrice", err)
	return price, err
}

func (c instrumentedChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.inner.SendTransaction(ctx, tx)
	c.metrics.ObserveRPC("eth_sendRawTransaction", err)
	return err
}

func (c instrumentedChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.inner.TransactionReceipt(ctx, txHash)
	c.metrics.ObserveRPC("eth_getTransactionReceipt", err)
	return receipt, err
}

func (c instrumentedChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.inner.CallContract(ctx, call, blockNumber)
	c.metrics.ObserveRPC("eth_call", err)
	return out, err
}
