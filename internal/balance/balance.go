// Package balance tracks each wallet's prepaid balance per chain: deposits,
// gas/fee charges, nonce replay protection, and withdrawal settlement.
package balance

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/numeric"
)

// GasPerTransfer is the marginal gas cost of one transfer inside a
// multicall batch (see internal/multicall).
const GasPerTransfer = 7900

// ETHTransferGasLimit is the gas reserved for a plain value transfer when
// computing the withdrawable amount: the base 21000 plus one multicall
// transfer leg.
const ETHTransferGasLimit = 21_000 + GasPerTransfer

// UserBalance is one wallet's prepaid balance on one chain.
type UserBalance struct {
	Amount *big.Int
	Nonces []*big.Int
}

// Ledger is the chain_id -> address -> UserBalance store.
type Ledger struct {
	mu      sync.Mutex
	byChain map[string]map[string]*UserBalance
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{byChain: make(map[string]map[string]*UserBalance)}
}

// InitChain creates the (empty) balance bucket for a newly registered chain.
func (l *Ledger) InitChain(chainID *big.Int) error {
	key := chainID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byChain[key]; exists {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainAlreadyExists)
	}
	l.byChain[key] = make(map[string]*UserBalance)
	return nil
}

// DeinitChain removes a chain's balance bucket entirely, discarding every
// wallet balance recorded on it. Callers are expected to have already
// settled outstanding withdrawals.
func (l *Ledger) DeinitChain(chainID *big.Int) error {
	key := chainID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byChain[key]; !exists {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}
	delete(l.byChain, key)
	return nil
}

// Create opens a zero balance for address on chainID.
func (l *Ledger) Create(chainID *big.Int, address string) error {
	normalized, err := numeric.Normalize(address)
	if err != nil {
		return err
	}

	key := chainID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.byChain[key]
	if !ok {
		return fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}
	if _, exists := bucket[normalized]; exists {
		return fmt.Errorf("address %s: %w", normalized, domainerr.ErrBalanceAlreadyExists)
	}
	bucket[normalized] = &UserBalance{Amount: new(big.Int)}
	return nil
}

// Exists reports whether address has a balance entry on chainID.
func (l *Ledger) Exists(chainID *big.Int, address string) (bool, error) {
	key := chainID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.byChain[key]
	if !ok {
		return false, fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}
	_, exists := bucket[address]
	return exists, nil
}

// Get returns the current amount for address on chainID.
func (l *Ledger) Get(chainID *big.Int, address string) (*big.Int, error) {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(bal.Amount), nil
}

// AddAmount credits a deposit to address's balance on chainID.
func (l *Ledger) AddAmount(chainID *big.Int, address string, amount *big.Int) error {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal.Amount = numeric.SaturatingAdd(bal.Amount, amount)
	return nil
}

// Reduce debits a charge (gas cost plus protocol fee) from address's
// balance. It fails rather than going negative: callers only reach this
// path after confirming IsSufficient, but the check is re-asserted here to
// keep the ledger's own invariant self-contained.
func (l *Ledger) Reduce(chainID *big.Int, address string, amount *big.Int) error {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal.Amount.Cmp(amount) < 0 {
		return fmt.Errorf("address %s: %w", address, domainerr.ErrInsufficientBalance)
	}
	bal.Amount.Sub(bal.Amount, amount)
	return nil
}

// Settle debits charge from owner and credits fee to pma on chainID in one
// critical section, so no concurrent reader can ever observe owner charged
// without pma credited or vice versa.
// owner and pma may be the same address (the PMA publishing its own
// subscription); the net effect then is owner debited by charge-fee.
func (l *Ledger) Settle(chainID *big.Int, owner, pma string, charge, fee *big.Int) error {
	ownerBal, err := l.lookup(chainID, owner)
	if err != nil {
		return err
	}
	pmaBal, err := l.lookup(chainID, pma)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ownerBal.Amount.Cmp(charge) < 0 {
		return fmt.Errorf("address %s: %w", owner, domainerr.ErrInsufficientBalance)
	}
	ownerBal.Amount.Sub(ownerBal.Amount, charge)
	pmaBal.Amount.Add(pmaBal.Amount, fee)
	return nil
}

// SaveNonce records a tx nonce as spent for address, rejecting replays.
func (l *Ledger) SaveNonce(chainID *big.Int, address string, nonce *big.Int) error {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range bal.Nonces {
		if n.Cmp(nonce) == 0 {
			return fmt.Errorf("nonce %s: %w", nonce, domainerr.ErrNonceAlreadyExists)
		}
	}
	bal.Nonces = append(bal.Nonces, new(big.Int).Set(nonce))
	return nil
}

// IsSufficient reports whether address's balance meets chainID's configured
// minimum.
func (l *Ledger) IsSufficient(chainID *big.Int, address string, minBalance *big.Int) (bool, error) {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return bal.Amount.Cmp(minBalance) >= 0, nil
}

// ValueForWithdraw zeroes out address's balance on chainID and returns the
// amount left after reserving gas for the eventual settlement transfer, at
// the given gas price. It fails if the balance cannot cover that gas.
func (l *Ledger) ValueForWithdraw(chainID *big.Int, address string, gasPrice *big.Int) (*big.Int, error) {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	gas := new(big.Int).Mul(big.NewInt(ETHTransferGasLimit), gasPrice)
	if bal.Amount.Cmp(gas) < 0 {
		return nil, fmt.Errorf("address %s: not enough funds to pay for gas: %w", address, domainerr.ErrInsufficientBalance)
	}
	value := new(big.Int).Sub(bal.Amount, gas)
	bal.Amount.SetInt64(0)
	return value, nil
}

// Clear zeroes address's balance and forgets its recorded nonces, the
// reset behind the admin clear-balance operation. Unlike
// ValueForWithdraw it reserves nothing and queues no transfer: the funds
// are simply discarded, for correcting a wallet an operator has decided
// should not be refunded automatically.
func (l *Ledger) Clear(chainID *big.Int, address string) error {
	bal, err := l.lookup(chainID, address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal.Amount.SetInt64(0)
	bal.Nonces = nil
	return nil
}

// All returns a defensive copy of every wallet balance on every chain,
// keyed by chain id string then normalized address, for use by
// internal/state's snapshot writer.
func (l *Ledger) All() map[string]map[string]UserBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]map[string]UserBalance, len(l.byChain))
	for chainKey, bucket := range l.byChain {
		copied := make(map[string]UserBalance, len(bucket))
		for addr, bal := range bucket {
			nonces := make([]*big.Int, len(bal.Nonces))
			for i, n := range bal.Nonces {
				nonces[i] = new(big.Int).Set(n)
			}
			copied[addr] = UserBalance{Amount: new(big.Int).Set(bal.Amount), Nonces: nonces}
		}
		out[chainKey] = copied
	}
	return out
}

// Restore replaces the ledger's entire contents with snapshot data. Used
// only during snapshot load at startup, never concurrently with a running
// tick.
func (l *Ledger) Restore(data map[string]map[string]UserBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byChain := make(map[string]map[string]*UserBalance, len(data))
	for chainKey, bucket := range data {
		copied := make(map[string]*UserBalance, len(bucket))
		for addr, bal := range bucket {
			nonces := make([]*big.Int, len(bal.Nonces))
			for i, n := range bal.Nonces {
				nonces[i] = new(big.Int).Set(n)
			}
			copied[addr] = &UserBalance{Amount: new(big.Int).Set(bal.Amount), Nonces: nonces}
		}
		byChain[chainKey] = copied
	}
	l.byChain = byChain
}

func (l *Ledger) lookup(chainID *big.Int, address string) (*UserBalance, error) {
	key := chainID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.byChain[key]
	if !ok {
		return nil, fmt.Errorf("chain %s: %w", key, domainerr.ErrChainNotFound)
	}
	bal, ok := bucket[address]
	if !ok {
		return nil, fmt.Errorf("address %s: %w", address, domainerr.ErrBalanceNotFound)
	}
	return bal, nil
}
