package api

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/ledger"
	"github.com/chainrelay/publisher/internal/numeric"
	"github.com/chainrelay/publisher/internal/subscription"
)

// SubscribeRequest is the user-facing payload behind Subscribe: validate
// limits and balance, build the subscription, append to the per-chain list.
type SubscribeRequest struct {
	ChainID      *big.Int
	Label        string
	ContractAddr string
	Signature    string
	Message      string
	Frequency    *big.Int
	MethodSig    string  // e.g. "report(uint256,uint256)"
	PairID       *string // non-nil selects the Feed method shape
	IsRandom     bool    // true selects the Random method shape
	GasLimit     *big.Int
}

// Subscribe authenticates owner via SIWE, resolves the method signature
// into a full ABI, and registers a new subscription on chainID, kicking
// the publisher immediately if it is idle.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*subscription.Subscription, error) {
	owner, err := s.authenticate(ctx, req.Message, req.Signature)
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: %w", err)
	}

	contract, err := numeric.Normalize(req.ContractAddr)
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: contract: %w", err)
	}

	chain, err := s.store.Chains.Get(req.ChainID)
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: %w", err)
	}
	sufficient, err := s.store.Balances.IsSufficient(req.ChainID, owner, chain.MinBalance)
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: %w", err)
	}
	if !sufficient {
		return nil, fmt.Errorf("api: subscribe: owner %s: %w", owner, domainerr.ErrInsufficientBalance)
	}

	resolved, err := s.resolver.Resolve(req.MethodSig, req.PairID, req.IsRandom)
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: %w", err)
	}

	cfg := s.store.Config()
	sub, err := s.store.Subscriptions.Add(req.ChainID, cfg.TimerFrequency, subscription.NewRequest{
		Label:        req.Label,
		Owner:        owner,
		ContractAddr: contract,
		Frequency:    req.Frequency,
		Method: subscription.Method{
			Name:       resolved.Name,
			ABI:        resolved.JSON,
			GasLimit:   new(big.Int).Set(req.GasLimit),
			MethodType: resolved.MethodType,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: %w", err)
	}

	s.recordAudit(ctx, ledger.KindSubscription, req.ChainID, owner, nil, sub.ID, "subscribe:"+req.Label)
	s.kickTickIfIdle(true)

	return sub, nil
}

// StopSubscription deactivates a single subscription owned by the caller.
func (s *Service) StopSubscription(ctx context.Context, chainID *big.Int, subID uint64, message, signature string) error {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return fmt.Errorf("api: stop_sub: %w", err)
	}
	if err := s.requireOwner(chainID, subID, owner); err != nil {
		return fmt.Errorf("api: stop_sub: %w", err)
	}
	if err := s.store.Subscriptions.Stop(chainID, subID); err != nil {
		return fmt.Errorf("api: stop_sub: %w", err)
	}
	s.recordAudit(ctx, ledger.KindSubscription, chainID, owner, nil, subID, "stop")
	return nil
}

// StartSubscription reactivates a single subscription owned by the caller.
func (s *Service) StartSubscription(ctx context.Context, chainID *big.Int, subID uint64, message, signature string) error {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return fmt.Errorf("api: start_sub: %w", err)
	}
	if err := s.requireOwner(chainID, subID, owner); err != nil {
		return fmt.Errorf("api: start_sub: %w", err)
	}
	if err := s.store.Subscriptions.Start(chainID, subID); err != nil {
		return fmt.Errorf("api: start_sub: %w", err)
	}
	s.recordAudit(ctx, ledger.KindSubscription, chainID, owner, nil, subID, "start")
	s.kickTickIfIdle(true)
	return nil
}

// StopAllOwned deactivates every subscription owned by the caller across
// every chain, without removing them.
func (s *Service) StopAllOwned(ctx context.Context, message, signature string) error {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return fmt.Errorf("api: stop_all: %w", err)
	}
	s.store.Subscriptions.StopFiltered(subscription.Filter{Owner: owner})
	s.recordAudit(ctx, ledger.KindSubscription, nil, owner, nil, 0, "stop_all")
	return nil
}

// RemoveAllOwned discards every subscription owned by the caller.
func (s *Service) RemoveAllOwned(ctx context.Context, message, signature string) error {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return fmt.Errorf("api: remove_all: %w", err)
	}
	s.store.Subscriptions.RemoveFiltered(subscription.Filter{Owner: owner})
	s.recordAudit(ctx, ledger.KindSubscription, nil, owner, nil, 0, "remove_all")
	return nil
}

// UpdateGasLimit lets a subscription's owner raise or lower its method gas
// limit after the fact, authenticated the same way as stop/start.
func (s *Service) UpdateGasLimit(ctx context.Context, chainID *big.Int, subID uint64, gasLimit *big.Int, message, signature string) error {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return fmt.Errorf("api: update_gas_limit: %w", err)
	}
	if err := s.store.Subscriptions.UpdateGasLimit(chainID, subID, owner, gasLimit); err != nil {
		return fmt.Errorf("api: update_gas_limit: %w", err)
	}
	return nil
}

func (s *Service) requireOwner(chainID *big.Int, subID uint64, owner string) error {
	sub, err := s.store.Subscriptions.Get(chainID, subID)
	if err != nil {
		return err
	}
	if sub.Owner != owner {
		return domainerr.ErrNotController
	}
	return nil
}
