// Package state owns the publisher's single mutable store and the
// cross-component cascades that span it: chain registration/removal,
// balance ledger, subscription store, withdraw queue, and the global
// configuration and timer singleton.
//
// Each component package (chainreg, balance, subscription, withdraw) is
// independently concurrency-safe; Store composes them and is responsible
// only for operations that must touch more than one at once, so that no
// caller ever needs to hold two component locks simultaneously.
package state

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/balance"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/subscription"
	"github.com/chainrelay/publisher/internal/whitelist"
	"github.com/chainrelay/publisher/internal/withdraw"
)

// GlobalConfig is the publisher's process-wide tunables.
type GlobalConfig struct {
	TxFee           *big.Int
	KeyName         string
	SubsLimitWallet int
	SubsLimitTotal  int
	TimerFrequency  *big.Int
	PMA             common.Address
	Controllers     []string
}

// configBox guards GlobalConfig behind a mutex: it is read on every tick and
// mutated rarely, by admin RPCs.
type configBox struct {
	mu  sync.RWMutex
	cfg GlobalConfig
}

// Store is the publisher's full mutable state.
type Store struct {
	Chains        *chainreg.Registry
	Balances      *balance.Ledger
	Subscriptions *subscription.Store
	Withdrawals   *withdraw.Queue
	Whitelist     *whitelist.List
	Timer         *Timer

	config *configBox
}

// New returns an empty Store seeded with the given config and timer handle.
func New(cfg GlobalConfig, timerHandle string) *Store {
	return &Store{
		Chains:        chainreg.New(),
		Balances:      balance.New(),
		Subscriptions: subscription.New(cfg.SubsLimitWallet, cfg.SubsLimitTotal),
		Withdrawals:   withdraw.New(),
		Whitelist:     whitelist.New(),
		Timer:         NewTimer(timerHandle),
		config:        &configBox{cfg: cfg},
	}
}

// RemoveFromWhitelist revokes address's whitelist entry and cascades into
// the subscription store, discarding every subscription it owns across all
// chains.
func (s *Store) RemoveFromWhitelist(address string) {
	s.Whitelist.Remove(address)
	s.Subscriptions.RemoveFiltered(subscription.Filter{Owner: address})
}

// Blacklist flags address as blacklisted without forgetting it, and
// cascades into the subscription store, stopping (not removing) every
// subscription it owns.
func (s *Store) Blacklist(address string) {
	s.Whitelist.Blacklist(address)
	s.Subscriptions.StopFiltered(subscription.Filter{Owner: address})
}

// Config returns a copy of the current global configuration.
func (s *Store) Config() GlobalConfig {
	s.config.mu.RLock()
	defer s.config.mu.RUnlock()
	return s.config.cfg
}

// UpdateConfig applies mutate to the stored configuration under its own
// short critical section.
func (s *Store) UpdateConfig(mutate func(*GlobalConfig)) {
	s.config.mu.Lock()
	defer s.config.mu.Unlock()
	mutate(&s.config.cfg)
}

// AddChain registers a new chain and initializes its dependent balance and
// withdraw-queue buckets in one call, so no chain ever exists in the
// registry without a matching entry in every other component.
func (s *Store) AddChain(req chainreg.AddRequest) error {
	if err := s.Chains.Add(req); err != nil {
		return err
	}
	if err := s.Balances.InitChain(req.ChainID); err != nil {
		return fmt.Errorf("state: init balances for chain %s: %w", req.ChainID, err)
	}
	s.Withdrawals.InitChain(req.ChainID)
	return nil
}

// RemoveChain deregisters a chain and cascades the purge into every other
// component: balances, the withdraw queue, and any subscriptions still
// referencing it.
//
// Rather than leave active subscriptions on a removed chain silently
// orphaned, removal cascades: it always succeeds and any
// subscription still registered on the chain is dropped along with it,
// rather than forbidding removal outright. A chain with live subscribers is
// still an operator mistake, so Remove logs nothing itself; callers (the
// admin CLI) are expected to warn before confirming.
func (s *Store) RemoveChain(chainID *big.Int) error {
	if err := s.Chains.Remove(chainID); err != nil {
		return err
	}
	s.Subscriptions.RemoveChain(chainID)
	_ = s.Balances.DeinitChain(chainID)
	s.Withdrawals.DeinitChain(chainID)
	return nil
}
