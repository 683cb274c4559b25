// Package api implements the publisher's user-facing and admin operations:
// deposit, withdraw, subscribe and subscription lifecycle management for
// subscribers, plus the controller-gated admin surface. Every mutating
// call records an entry to internal/ledger.
package api

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/ledger"
	"github.com/chainrelay/publisher/internal/numeric"
	"github.com/chainrelay/publisher/internal/publisher"
	"github.com/chainrelay/publisher/internal/siwe"
	"github.com/chainrelay/publisher/internal/state"
	"github.com/chainrelay/publisher/internal/subscription"
)

// Service is the business-logic layer internal/apiserver's HTTP handlers
// are a thin adapter over; cmd/publisherctl in turn talks to those same
// handlers over HTTP rather than importing Service directly.
type Service struct {
	store     *state.Store
	siwe      siwe.Verifier
	resolver  *abiresolver.Resolver
	txFetcher TxFetcher
	scheduler *publisher.Scheduler
	audit     *ledger.Store
	logger    *zap.Logger
}

// New returns a Service wired to its collaborators. scheduler may be nil in
// tests that don't exercise the "kick a tick" side effect; audit may be nil
// to disable persisted auditing.
func New(
	store *state.Store,
	verifier siwe.Verifier,
	resolver *abiresolver.Resolver,
	txFetcher TxFetcher,
	scheduler *publisher.Scheduler,
	audit *ledger.Store,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		siwe:      verifier,
		resolver:  resolver,
		txFetcher: txFetcher,
		scheduler: scheduler,
		audit:     audit,
		logger:    logger,
	}
}

// authenticate recovers the signer of a SIWE message and confirms they are
// whitelisted, returning the normalized address. Deposit, withdraw,
// subscribe, stop/start, and gas-limit updates all come through here.
func (s *Service) authenticate(ctx context.Context, message, signature string) (string, error) {
	address, err := s.siwe.Verify(ctx, message, signature)
	if err != nil {
		return "", fmt.Errorf("api: siwe verify: %w", err)
	}
	if !s.store.Whitelist.IsWhitelisted(address) {
		return "", fmt.Errorf("api: %s: %w", address, domainerr.ErrNotWhitelisted)
	}
	return address, nil
}

// isController reports whether address is one of the process's configured
// controllers.
func (s *Service) isController(address string) bool {
	cfg := s.store.Config()
	normalized, err := numeric.Normalize(address)
	if err != nil {
		return false
	}
	for _, c := range cfg.Controllers {
		if n, err := numeric.Normalize(c); err == nil && n == normalized {
			return true
		}
	}
	return false
}

// requireController authenticates a SIWE (message, signature) pair and
// rejects it unless the recovered address is a controller.
func (s *Service) requireController(ctx context.Context, message, signature string) (string, error) {
	address, err := s.siwe.Verify(ctx, message, signature)
	if err != nil {
		return "", fmt.Errorf("api: siwe verify: %w", err)
	}
	if !s.isController(address) {
		return "", fmt.Errorf("api: %s: %w", address, domainerr.ErrNotController)
	}
	return address, nil
}

// AuthenticateController is the exported form of requireController, for
// adapters (internal/apiserver's admin login) that need to recover and
// verify a controller's address without performing a mutation alongside it.
func (s *Service) AuthenticateController(ctx context.Context, message, signature string) (string, error) {
	return s.requireController(ctx, message, signature)
}

// kickTickIfIdle fires a tick on the scheduler in the background when the
// timer is not currently armed, so a fresh subscribe or withdraw does not
// wait for the next scheduled tick.
func (s *Service) kickTickIfIdle(immediate bool) {
	if s.scheduler == nil || s.store.Timer.IsActive() {
		return
	}
	if !immediate {
		return
	}
	now := big.NewInt(time.Now().Unix())
	go func() {
		if err := s.scheduler.Tick(context.Background(), now); err != nil {
			s.logger.Warn("kicked tick failed", zap.Error(err))
		}
	}()
}

func (s *Service) recordAudit(ctx context.Context, kind ledger.Kind, chainID *big.Int, address string, amount *big.Int, subID uint64, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, time.Now(), kind, chainID, address, amount, subID, detail); err != nil {
		s.logger.Warn("audit record failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// SubscriptionView is the read-only projection returned by GetSubscriptions,
// carrying the chain id alongside the subscription since subscription.Store
// itself is chain-scoped internally.
type SubscriptionView struct {
	ChainID *big.Int
	Sub     subscription.Subscription
}

// GetBalance returns address's current prepaid balance on chainID.
func (s *Service) GetBalance(chainID *big.Int, address string) (*big.Int, error) {
	normalized, err := numeric.Normalize(address)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	return s.store.Balances.Get(chainID, normalized)
}

// GetPMA returns the publisher's shared signing address.
func (s *Service) GetPMA() common.Address {
	return s.store.Config().PMA
}

// GetSubscriptions returns the subscriptions matching the optional chain
// and owner filters (nil/empty match everything), paginated in (chain,
// id) order so a cursor walks a stable sequence.
func (s *Service) GetSubscriptions(chainID *big.Int, owner string, page Pagination) ([]SubscriptionView, error) {
	ownerFilter := ""
	if owner != "" {
		normalized, err := numeric.Normalize(owner)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		ownerFilter = normalized
	}

	byChain, _ := s.store.Subscriptions.AllRaw()

	chainKeys := make([]string, 0, len(byChain))
	for key := range byChain {
		chainKeys = append(chainKeys, key)
	}
	sort.Strings(chainKeys)

	var all []SubscriptionView
	for _, key := range chainKeys {
		id, ok := new(big.Int).SetString(key, 10)
		if !ok || (chainID != nil && chainID.String() != key) {
			continue
		}
		subs := byChain[key]
		sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
		for _, sub := range subs {
			if ownerFilter != "" && sub.Owner != ownerFilter {
				continue
			}
			all = append(all, SubscriptionView{ChainID: id, Sub: sub})
		}
	}

	start, end := page.apply(len(all))
	return all[start:end], nil
}
