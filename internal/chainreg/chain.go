// Package chainreg tracks the set of EVM-compatible chains the publisher is
// configured to serve: RPC endpoint, minimum balance, gas limit, and the
// per-chain multicall contract.
package chainreg

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticallContract back-fills chains that predate the
// multicall_contract field (see internal/state's snapshot migration).
const DefaultMulticallContract = "0x88e33D0d7f9d130c85687FC73655457204E29467"

// Chain is one EVM chain's configuration record.
type Chain struct {
	ChainID          *big.Int
	RPC              string
	MinBalance       *big.Int
	BlockGasLimit    *big.Int
	Fee              *big.Int // optional: nil means "use the fee bridge"
	Symbol           string   // optional: "" means "no symbol configured"
	MulticallAddress common.Address
}

// AddRequest is the input to Add.
type AddRequest struct {
	ChainID          *big.Int
	RPC              string
	MinBalance       *big.Int
	BlockGasLimit    *big.Int
	Fee              *big.Int
	Symbol           string
	MulticallAddress common.Address
}

// Patch carries an optional subset of mutable Chain fields for Update.
type Patch struct {
	RPC              *string
	MinBalance       *big.Int
	BlockGasLimit    *big.Int
	Fee              *big.Int
	Symbol           *string
	MulticallAddress *common.Address
}

// Registry is the concurrency-safe store of all known chains.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]*Chain // keyed by ChainID.String()
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{chains: make(map[string]*Chain)}
}

// Add registers a new chain. It fails if the chain id already exists or the
// RPC does not parse as an absolute URL.
func (r *Registry) Add(req AddRequest) error {
	if req.ChainID == nil {
		return fmt.Errorf("chain id is required: %w", domainerr.ErrInvalidChainRPC)
	}
	if req.MinBalance == nil || req.MinBalance.Sign() <= 0 {
		return fmt.Errorf("min_balance must be positive: %w", domainerr.ErrInvalidChainRPC)
	}
	parsed, err := url.ParseRequestURI(strings.TrimSpace(req.RPC))
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("rpc %q: %w", req.RPC, domainerr.ErrInvalidChainRPC)
	}

	key := req.ChainID.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[key]; exists {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainAlreadyExists)
	}

	multicall := req.MulticallAddress
	if multicall == (common.Address{}) {
		multicall = common.HexToAddress(DefaultMulticallContract)
	}

	r.chains[key] = &Chain{
		ChainID:          new(big.Int).Set(req.ChainID),
		RPC:              parsed.String(),
		MinBalance:       new(big.Int).Set(req.MinBalance),
		BlockGasLimit:    cloneOrZero(req.BlockGasLimit),
		Fee:              cloneOptional(req.Fee),
		Symbol:           req.Symbol,
		MulticallAddress: multicall,
	}
	return nil
}

// Remove deletes a chain. Callers (internal/state) are responsible for
// cascading the purge into the balance ledger and withdraw queue, since this
// package holds neither.
func (r *Registry) Remove(id *big.Int) error {
	key := id.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[key]; !exists {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}
	delete(r.chains, key)
	return nil
}

// Update applies a partial patch to an existing chain.
func (r *Registry) Update(id *big.Int, patch Patch) error {
	key := id.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	chain, exists := r.chains[key]
	if !exists {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}

	if patch.RPC != nil {
		parsed, err := url.ParseRequestURI(strings.TrimSpace(*patch.RPC))
		if err != nil || !parsed.IsAbs() {
			return fmt.Errorf("rpc %q: %w", *patch.RPC, domainerr.ErrInvalidChainRPC)
		}
		chain.RPC = parsed.String()
	}
	if patch.MinBalance != nil {
		chain.MinBalance = new(big.Int).Set(patch.MinBalance)
	}
	if patch.BlockGasLimit != nil {
		chain.BlockGasLimit = new(big.Int).Set(patch.BlockGasLimit)
	}
	if patch.Fee != nil {
		chain.Fee = new(big.Int).Set(patch.Fee)
	}
	if patch.Symbol != nil {
		chain.Symbol = *patch.Symbol
	}
	if patch.MulticallAddress != nil {
		chain.MulticallAddress = *patch.MulticallAddress
	}
	return nil
}

// Get returns a defensive copy of the chain with the given id.
func (r *Registry) Get(id *big.Int) (Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, exists := r.chains[id.String()]
	if !exists {
		return Chain{}, fmt.Errorf("chain %s: %w", id, domainerr.ErrChainNotFound)
	}
	return cloneChain(chain), nil
}

// GetAll returns a defensive copy of every registered chain.
func (r *Registry) GetAll() []Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, cloneChain(c))
	}
	return out
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id *big.Int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chains[id.String()]
	return ok
}

func cloneChain(c *Chain) Chain {
	return Chain{
		ChainID:          new(big.Int).Set(c.ChainID),
		RPC:              c.RPC,
		MinBalance:       new(big.Int).Set(c.MinBalance),
		BlockGasLimit:    new(big.Int).Set(c.BlockGasLimit),
		Fee:              cloneOptional(c.Fee),
		Symbol:           c.Symbol,
		MulticallAddress: c.MulticallAddress,
	}
}

func cloneOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}

func cloneOptional(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}
