package api

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainrelay/publisher/internal/chainreg"
)

// TxInfo is the subset of a mined transaction Deposit needs to verify: its
// recipient, value, replay-defense nonce, and sender.
type TxInfo struct {
	To     common.Address
	Value  *big.Int
	Nonce  uint64
	From   common.Address
	Status uint64 // 1 == success, per types.Receipt.Status
}

// TxFetcher resolves a transaction hash on a given chain to its mined
// details, and reports a chain's current suggested gas price. Both
// Deposit (receipt verification) and Withdraw (gas-reserve computation)
// depend on it.
type TxFetcher interface {
	FetchTx(ctx context.Context, chainID *big.Int, txHash common.Hash) (TxInfo, error)
	GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error)
}

// EthclientTxFetcher dials each chain's RPC endpoint lazily and caches the
// connection, mirroring internal/publisher.EthclientDriverSet's
// one-persistent-connection-per-chain policy.
type EthclientTxFetcher struct {
	chains *chainreg.Registry

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewEthclientTxFetcher returns a TxFetcher backed by real RPC dials.
func NewEthclientTxFetcher(chains *chainreg.Registry) *EthclientTxFetcher {
	return &EthclientTxFetcher{chains: chains, clients: make(map[string]*ethclient.Client)}
}

func (f *EthclientTxFetcher) client(chainID *big.Int) (*ethclient.Client, error) {
	key := chainID.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	chain, err := f.chains.Get(chainID)
	if err != nil {
		return nil, fmt.Errorf("api: txfetcher chain %s: %w", key, err)
	}
	client, err := ethclient.Dial(chain.RPC)
	if err != nil {
		return nil, fmt.Errorf("api: txfetcher dial chain %s: %w", key, err)
	}
	f.clients[key] = client
	return client, nil
}

// FetchTx looks up a transaction by hash, requiring it already be mined
// (the receipt must exist), and recovers its sender via the chain's own
// signer rules.
func (f *EthclientTxFetcher) FetchTx(ctx context.Context, chainID *big.Int, txHash common.Hash) (TxInfo, error) {
	client, err := f.client(chainID)
	if err != nil {
		return TxInfo{}, err
	}

	tx, pending, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		return TxInfo{}, fmt.Errorf("api: fetch tx %s: %w", txHash, err)
	}
	if pending {
		return TxInfo{}, fmt.Errorf("api: tx %s is still pending", txHash)
	}

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return TxInfo{}, fmt.Errorf("api: fetch receipt %s: %w", txHash, err)
	}

	signer := types.LatestSignerForChainID(chainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return TxInfo{}, fmt.Errorf("api: recover tx %s sender: %w", txHash, err)
	}

	to := common.Address{}
	if tx.To() != nil {
		to = *tx.To()
	}

	return TxInfo{
		To:     to,
		Value:  tx.Value(),
		Nonce:  tx.Nonce(),
		From:   from,
		Status: receipt.Status,
	}, nil
}

// GasPrice returns chainID's current suggested gas price, unmodified: the
// x1.2 multiplier is the multicall driver's own concern, and Withdraw's
// gas-reserve computation uses this price as-is.
func (f *EthclientTxFetcher) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	client, err := f.client(chainID)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: gas price chain %s: %w", chainID, err)
	}
	return price, nil
}
