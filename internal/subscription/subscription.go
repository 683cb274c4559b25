// Package subscription holds the set of per-wallet publishing subscriptions:
// their ABI-resolved methods, execution frequency, and lifecycle status,
// grouped per chain for the publisher scheduler.
package subscription

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/numeric"
)

// MinFrequencySeconds is the floor on any subscription's execution
// frequency.
const MinFrequencySeconds = 30 * 60

// MethodKind tags which of the three ABI shapes a subscription's method
// uses: a price-feed pair lookup, a random-value template, or no input at
// all.
type MethodKind int

const (
	KindEmpty MethodKind = iota
	KindPair
	KindRandom
)

// MethodType is a closed tagged union over the three input sources a
// method can draw from: a price-feed pair, fresh randomness, or nothing.
type MethodType struct {
	Kind      MethodKind
	PairID    string // set iff Kind == KindPair
	ParamType string // set iff Kind == KindRandom
}

// Method is the resolved ABI call a subscription fires on each publish.
type Method struct {
	Name       string
	ABI        string
	GasLimit   *big.Int
	MethodType MethodType
}

// Status is a subscription's mutable lifecycle state.
type Status struct {
	IsActive   bool
	LastUpdate *big.Int // unix seconds
}

// Subscription is one subscriber's registered publishing job.
type Subscription struct {
	ID           uint64
	Label        string
	Owner        string
	ContractAddr string
	Frequency    *big.Int // seconds
	Method       Method
	Status       Status
}

// NewRequest is the input to Add.
type NewRequest struct {
	Label        string
	Owner        string
	ContractAddr string
	Frequency    *big.Int
	Method       Method
}

// BalanceChecker reports whether owner's balance on chainID currently meets
// the chain's minimum, used by StopInsufficients.
type BalanceChecker func(chainID *big.Int, owner string) (bool, error)

// Store is the chain_id -> []Subscription registry.
type Store struct {
	mu          sync.Mutex
	byChain     map[string][]*Subscription
	nextID      uint64
	limitTotal  int
	limitWallet int
}

// New returns an empty store with the given wallet/total subscription caps.
func New(limitWallet, limitTotal int) *Store {
	return &Store{
		byChain:     make(map[string][]*Subscription),
		limitWallet: limitWallet,
		limitTotal:  limitTotal,
	}
}

// Add validates frequency/limit invariants and registers a new subscription
// on chainID, starting active.
func (s *Store) Add(chainID *big.Int, timerFrequency *big.Int, req NewRequest) (*Subscription, error) {
	if req.Frequency.Cmp(big.NewInt(MinFrequencySeconds)) < 0 {
		return nil, fmt.Errorf("frequency %s: %w", req.Frequency, domainerr.ErrFrequencyTooLow)
	}
	if req.Frequency.Cmp(timerFrequency) < 0 {
		return nil, fmt.Errorf("frequency %s < timer frequency %s: %w", req.Frequency, timerFrequency, domainerr.ErrTimerFrequencyGT)
	}
	mod := new(big.Int).Mod(req.Frequency, timerFrequency)
	if mod.Sign() != 0 {
		return nil, fmt.Errorf("frequency %s not a multiple of timer frequency %s: %w", req.Frequency, timerFrequency, domainerr.ErrFrequencyNotDivides)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limitTotal > 0 && s.totalCountLocked() >= s.limitTotal {
		return nil, fmt.Errorf("total subscriptions: %w", domainerr.ErrTotalSubsLimit)
	}
	if s.limitWallet > 0 && s.walletCountLocked(req.Owner) >= s.limitWallet {
		return nil, fmt.Errorf("wallet %s subscriptions: %w", req.Owner, domainerr.ErrWalletSubsLimit)
	}

	s.nextID++
	sub := &Subscription{
		ID:           s.nextID,
		Label:        req.Label,
		Owner:        req.Owner,
		ContractAddr: req.ContractAddr,
		Frequency:    new(big.Int).Set(req.Frequency),
		Method:       req.Method,
		Status:       Status{IsActive: true, LastUpdate: big.NewInt(0)},
	}

	key := chainID.String()
	s.byChain[key] = append(s.byChain[key], sub)
	return sub, nil
}

func (s *Store) totalCountLocked() int {
	total := 0
	for _, subs := range s.byChain {
		total += len(subs)
	}
	return total
}

func (s *Store) walletCountLocked(owner string) int {
	count := 0
	for _, subs := range s.byChain {
		for _, sub := range subs {
			if sub.Owner == owner {
				count++
			}
		}
	}
	return count
}

// Stop deactivates a single subscription until Start reactivates it.
func (s *Store) Stop(chainID *big.Int, subID uint64) error {
	return s.setActive(chainID, subID, false)
}

// Start reactivates a single subscription.
func (s *Store) Start(chainID *big.Int, subID uint64) error {
	return s.setActive(chainID, subID, true)
}

func (s *Store) setActive(chainID *big.Int, subID uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.byChain[chainID.String()]
	if !ok {
		return fmt.Errorf("chain %s: %w", chainID, domainerr.ErrChainNotFound)
	}
	for _, sub := range subs {
		if sub.ID == subID {
			sub.Status.IsActive = active
			return nil
		}
	}
	return fmt.Errorf("subscription %d: %w", subID, domainerr.ErrSubscriptionNotFound)
}

// StopAll deactivates every subscription on every chain without removing
// them.
func (s *Store) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subs := range s.byChain {
		for _, sub := range subs {
			sub.Status.IsActive = false
		}
	}
}

// RemoveAll discards every subscription on every chain.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChain = make(map[string][]*Subscription)
}

// RemoveChain discards every subscription registered on chainID, used when a
// chain is deregistered.
func (s *Store) RemoveChain(chainID *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChain, chainID.String())
}

// Filter narrows a bulk operation to an optional chain, an optional set of
// subscription ids, and an optional owner. A zero-value field in any
// dimension matches everything on that dimension.
type Filter struct {
	ChainID *big.Int
	IDs     []uint64
	Owner   string
}

func (f Filter) matchesChain(key string) bool {
	return f.ChainID == nil || f.ChainID.String() == key
}

func (f Filter) matchesSub(sub *Subscription) bool {
	if f.Owner != "" && sub.Owner != f.Owner {
		return false
	}
	if len(f.IDs) == 0 {
		return true
	}
	for _, id := range f.IDs {
		if id == sub.ID {
			return true
		}
	}
	return false
}

// Get returns a defensive copy of one subscription.
func (s *Store) Get(chainID *big.Int, subID uint64) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byChain[chainID.String()] {
		if sub.ID == subID {
			return *sub, nil
		}
	}
	return Subscription{}, fmt.Errorf("subscription %d: %w", subID, domainerr.ErrSubscriptionNotFound)
}

// List returns a defensive copy of every subscription matching filter,
// across all chains if filter.ChainID is nil.
func (s *Store) List(filter Filter) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Subscription
	for key, subs := range s.byChain {
		if !filter.matchesChain(key) {
			continue
		}
		for _, sub := range subs {
			if filter.matchesSub(sub) {
				out = append(out, *sub)
			}
		}
	}
	return out
}

// StopFiltered deactivates every subscription matching filter, the bulk
// counterpart to Stop used by whitelist blacklisting and by an owner's
// "stop all my subscriptions" request.
func (s *Store) StopFiltered(filter Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, subs := range s.byChain {
		if !filter.matchesChain(key) {
			continue
		}
		for _, sub := range subs {
			if filter.matchesSub(sub) {
				sub.Status.IsActive = false
			}
		}
	}
}

// RemoveFiltered discards every subscription matching filter, the bulk
// counterpart to RemoveAll used when an address is removed from the
// whitelist entirely.
func (s *Store) RemoveFiltered(filter Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, subs := range s.byChain {
		if !filter.matchesChain(key) {
			continue
		}
		kept := subs[:0]
		for _, sub := range subs {
			if !filter.matchesSub(sub) {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(s.byChain, key)
		} else {
			s.byChain[key] = kept
		}
	}
}

// UpdateGasLimit changes a subscription's method gas limit, guarded by an
// owner check so one wallet cannot reconfigure another's subscription.
func (s *Store) UpdateGasLimit(chainID *big.Int, subID uint64, owner string, gasLimit *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byChain[chainID.String()] {
		if sub.ID != subID {
			continue
		}
		if sub.Owner != owner {
			return fmt.Errorf("subscription %d: %w", subID, domainerr.ErrNotController)
		}
		sub.Method.GasLimit = new(big.Int).Set(gasLimit)
		return nil
	}
	return fmt.Errorf("subscription %d: %w", subID, domainerr.ErrSubscriptionNotFound)
}

// StopInsufficients deactivates every active subscription whose owner's
// balance no longer meets the chain's minimum.
func (s *Store) StopInsufficients(check BalanceChecker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, subs := range s.byChain {
		chainID, ok := new(big.Int).SetString(key, 10)
		if !ok {
			continue
		}
		for _, sub := range subs {
			if !sub.Status.IsActive {
				continue
			}
			sufficient, err := check(chainID, sub.Owner)
			if err != nil {
				return err
			}
			if !sufficient {
				sub.Status.IsActive = false
			}
		}
	}
	return nil
}

// GroupByFrequency re-synchronizes last_update within each chain: every
// group of subscriptions sharing an identical frequency is bumped to the
// max last_update in the group, so future firings land in the same tick.
// Idempotent: a second call on an already-grouped set is a no-op.
func (s *Store) GroupByFrequency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subs := range s.byChain {
		groups := make(map[string][]*Subscription)
		for _, sub := range subs {
			key := sub.Frequency.String()
			groups[key] = append(groups[key], sub)
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			max := group[0].Status.LastUpdate
			for _, sub := range group[1:] {
				if sub.Status.LastUpdate.Cmp(max) > 0 {
					max = sub.Status.LastUpdate
				}
			}
			for _, sub := range group {
				sub.Status.LastUpdate = new(big.Int).Set(max)
			}
		}
	}
}

// GetPublishable returns, per chain, the subscriptions due at time now
// (active and now-last_update >= frequency), plus whether any subscription
// anywhere is still active (used by the scheduler to decide whether to keep
// ticking at all).
func (s *Store) GetPublishable(now *big.Int) (map[string][]*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make(map[string][]*Subscription)
	anyActive := false

	for key, subs := range s.byChain {
		for _, sub := range subs {
			if !sub.Status.IsActive {
				continue
			}
			anyActive = true

			// Floored at zero: a last_update ahead of now (grouping bumped
			// it, or clock skew) reads as "just fired", never as due.
			elapsed := numeric.SaturatingSub(now, sub.Status.LastUpdate)
			if elapsed.Cmp(sub.Frequency) >= 0 {
				groups[key] = append(groups[key], sub)
			}
		}
	}
	return groups, anyActive
}

// AllRaw returns every subscription grouped by chain id key, plus the
// current persistent id counter, for use by internal/state's snapshot
// writer.
func (s *Store) AllRaw() (map[string][]Subscription, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Subscription, len(s.byChain))
	for key, subs := range s.byChain {
		copied := make([]Subscription, len(subs))
		for i, sub := range subs {
			copied[i] = *sub
		}
		out[key] = copied
	}
	return out, s.nextID
}

// Restore replaces the store's entire contents with snapshot data and the
// persisted id counter, so subscription ids remain stable and never
// reused across a restart. Used only during snapshot load.
func (s *Store) Restore(byChain map[string][]Subscription, nextID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := make(map[string][]*Subscription, len(byChain))
	for key, subs := range byChain {
		ptrs := make([]*Subscription, len(subs))
		for i := range subs {
			sub := subs[i]
			ptrs[i] = &sub
		}
		restored[key] = ptrs
	}
	s.byChain = restored
	s.nextID = nextID
}

// MarkSettled advances last_update to now for a subscription that was
// successfully charged. Callers hold no external lock; this method owns its
// own critical section.
func (s *Store) MarkSettled(chainID *big.Int, subID uint64, now *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byChain[chainID.String()] {
		if sub.ID == subID {
			sub.Status.LastUpdate = new(big.Int).Set(now)
			return
		}
	}
}
