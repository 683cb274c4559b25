// Package publisher is the scheduler: the single entry point that, once per
// armed tick, sweeps insufficient subscriptions, selects what is due, fans
// out a multicall per chain, settles results, and flushes withdrawals.
package publisher

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/feebridge"
	"github.com/chainrelay/publisher/internal/metrics"
	"github.com/chainrelay/publisher/internal/multicall"
	"github.com/chainrelay/publisher/internal/numeric"
	"github.com/chainrelay/publisher/internal/state"
	"github.com/chainrelay/publisher/internal/withdraw"
)

// maxAttemptsPerChainPerTick bounds publishOnChain's inner retry loop. A
// subscription whose call keeps returning used_gas==0 would otherwise spin
// the loop forever within one tick; after this many attempts whatever
// remains is left untouched for the next tick: the loop over calls that
// keep returning zero used gas must exit without an unbounded busy loop.
const maxAttemptsPerChainPerTick = 5

// Driver is the subset of multicall.Driver the scheduler needs: one chain's
// aggregated call and transfer submission.
type Driver interface {
	Multicall(ctx context.Context, target common.Address, calls []multicall.Call) (multicall.Outcome, error)
	MultiTransfer(ctx context.Context, target common.Address, transfers []multicall.Transfer) error
}

// DriverSet resolves the Driver bound to a given chain, one connection per
// registered chain.
type DriverSet interface {
	Driver(chainID *big.Int) (Driver, error)
}

// InputSource supplies the live data a subscription's call input depends
// on: price-feed quotes for Pair methods and a fresh seed for Random
// methods, regenerated on every attempt (a feed rate may change between
// attempts, and randomness must be fresh).
type InputSource interface {
	PairInput(ctx context.Context, pairID string) (abiresolver.PairInput, error)
	RandomSeed() uint64
}

// TimerIDSource produces the opaque handle recorded for the next armed
// tick. Injectable so tests can assert on a fixed sequence instead of
// real entropy.
type TimerIDSource func() string

// Scheduler runs one tick at a time against a Store, guarded by the
// Store's own Timer re-entrancy flag.
type Scheduler struct {
	store       *state.Store
	resolver    *abiresolver.Resolver
	feeBridge   *feebridge.Bridge
	drivers     DriverSet
	input       InputSource
	withdrawals *withdraw.Executor
	nextTimerID TimerIDSource
	pma         string // normalized PMA address, used as the fee-credit account
	logger      *zap.Logger
	metrics     *metrics.Registry

	stopped atomic.Bool // set by the admin stop_timer endpoint
}

// WithMetrics attaches a metrics registry the scheduler updates once per
// tick (active subscription gauge, cycle counter). Returns the same
// Scheduler for chaining at construction time; a nil registry disables
// instrumentation, which is also the zero-value behavior.
func (s *Scheduler) WithMetrics(reg *metrics.Registry) *Scheduler {
	s.metrics = reg
	return s
}

// New returns a Scheduler wired to store and its collaborators.
func New(
	store *state.Store,
	resolver *abiresolver.Resolver,
	feeBridge *feebridge.Bridge,
	drivers DriverSet,
	input InputSource,
	withdrawals *withdraw.Executor,
	pma common.Address,
	nextTimerID TimerIDSource,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizedPMA, _ := numeric.Normalize(pma.Hex())
	return &Scheduler{
		store:       store,
		resolver:    resolver,
		feeBridge:   feeBridge,
		drivers:     drivers,
		input:       input,
		withdrawals: withdrawals,
		nextTimerID: nextTimerID,
		pma:         normalizedPMA,
		logger:      logger,
	}
}

// Tick runs the seven-step contract once. now is the tick's logical
// timestamp (unix seconds), injected so tests can control it exactly.
func (s *Scheduler) Tick(ctx context.Context, now *big.Int) error {
	if s.stopped.Load() {
		return nil
	}
	if err := s.store.Timer.Activate(); err != nil {
		return fmt.Errorf("publisher: %w", err)
	}

	if err := s.store.Subscriptions.StopInsufficients(s.sufficiencyCheck); err != nil {
		s.store.Timer.Deactivate()
		return fmt.Errorf("publisher: stop_insufficients: %w", err)
	}

	// Re-synchronize last_update within each chain's same-frequency groups
	// before selection, so subscriptions that started at different times
	// converge onto the same future ticks. Idempotent: a tick that finds
	// everything already aligned leaves it untouched.
	s.store.Subscriptions.GroupByFrequency()

	groups, anyActive := s.store.Subscriptions.GetPublishable(now)
	if s.metrics != nil {
		s.metrics.Cycles.Inc()
		s.observeActiveSubscriptions()
	}
	if !anyActive {
		s.flushWithdrawals(ctx)
		s.store.Timer.Deactivate()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, subs := range groups {
		key, subs := key, subs
		g.Go(func() error {
			s.publishOnChain(gctx, key, subs, now)
			return nil
		})
	}
	_ = g.Wait()

	s.flushWithdrawals(ctx)

	s.store.Timer.Rearm(s.nextTimerID())
	s.store.Timer.Deactivate()
	return nil
}

// observeActiveSubscriptions refreshes the active-subscription gauge for
// every known chain, including chains with zero active subscriptions so a
// chain that drops to none doesn't leave a stale nonzero reading.
func (s *Scheduler) observeActiveSubscriptions() {
	counts := make(map[string]int)
	for _, chain := range s.store.Chains.GetAll() {
		counts[chain.ChainID.String()] = 0
	}

	byChain, _ := s.store.Subscriptions.AllRaw()
	for chainKey, subs := range byChain {
		active := 0
		for _, sub := range subs {
			if sub.Status.IsActive {
				active++
			}
		}
		counts[chainKey] = active
	}

	for chain, count := range counts {
		s.metrics.ActiveSubscriptions.WithLabelValues(chain).Set(float64(count))
	}
}

// Stop permanently disables future ticks (the admin stop-timer operation).
// A tick already in flight still runs to completion; Tick becomes a no-op
// for every call afterward until the process restarts.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (s *Scheduler) IsStopped() bool {
	return s.stopped.Load()
}

func (s *Scheduler) sufficiencyCheck(chainID *big.Int, owner string) (bool, error) {
	chain, err := s.store.Chains.Get(chainID)
	if err != nil {
		return false, err
	}
	return s.store.Balances.IsSufficient(chainID, owner, chain.MinBalance)
}

// flushWithdrawals drains every chain's withdraw queue through its
// multicall contract. An empty queue or an unregistered chain is skipped
// silently, a chain without a reachable driver is skipped with a warning,
// and a transport failure is logged and the queue preserved by Executor
// itself.
func (s *Scheduler) flushWithdrawals(ctx context.Context) {
	for _, key := range s.store.Withdrawals.Chains() {
		chainID, ok := new(big.Int).SetString(key, 10)
		if !ok {
			continue
		}
		if s.store.Withdrawals.IsEmpty(chainID) {
			continue
		}
		chain, err := s.store.Chains.Get(chainID)
		if err != nil {
			continue
		}
		driver, err := s.drivers.Driver(chainID)
		if err != nil {
			s.logger.Warn("withdraw flush: no driver for chain", zap.String("chain", chainID.String()), zap.Error(err))
			continue
		}
		if err := s.withdrawals.ExecuteChain(ctx, chainID, chain.MulticallAddress, driver); err != nil {
			s.logger.Warn("withdraw flush failed", zap.String("chain", chainID.String()), zap.Error(err))
		}
	}
}
