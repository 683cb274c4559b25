package publisher

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/feebridge"
	"github.com/chainrelay/publisher/internal/multicall"
	"github.com/chainrelay/publisher/internal/subscription"
)

// extraGasUnits is the fixed settlement buffer added to a subscription's
// own gas limit when computing its charge:
// gas_price * (gas_limit + extraGasUnits) + fee.
const extraGasUnits = 100

// publishOnChain runs one chain's dispatch loop to completion or until
// maxAttemptsPerChainPerTick is exhausted. Failures are logged and
// swallowed here: one chain's trouble never aborts another chain's tick.
func (s *Scheduler) publishOnChain(ctx context.Context, chainKey string, subs []*subscription.Subscription, now *big.Int) {
	chainID, ok := new(big.Int).SetString(chainKey, 10)
	if !ok {
		s.logger.Error("publisher: malformed chain key", zap.String("key", chainKey))
		return
	}

	chain, err := s.store.Chains.Get(chainID)
	if err != nil {
		s.logger.Error("publisher: chain vanished mid-tick", zap.String("chain", chainKey), zap.Error(err))
		return
	}

	driver, err := s.drivers.Driver(chainID)
	if err != nil {
		s.logger.Error("publisher: no driver for chain", zap.String("chain", chainKey), zap.Error(err))
		return
	}

	remaining := subs
	for attempt := 0; attempt < maxAttemptsPerChainPerTick && len(remaining) > 0; attempt++ {
		calls, err := s.buildCalls(ctx, remaining)
		if err != nil {
			s.logger.Error("publisher: build calldata", zap.String("chain", chainKey), zap.Error(err))
			return
		}

		fee, err := s.feeBridge.Fee(ctx, feebridge.ChainFee{
			Symbol:   chain.Symbol,
			Fixed:    chain.Fee,
			USDCents: s.store.Config().TxFee,
		})
		if err != nil {
			s.logger.Error("publisher: fee bridge", zap.String("chain", chainKey), zap.Error(err))
			return
		}

		outcome, err := driver.Multicall(ctx, chain.MulticallAddress, calls)
		if err != nil {
			if errors.Is(err, domainerr.ErrCorruptedMulticall) {
				s.logger.Warn("publisher: corrupted multicall result, retrying", zap.String("chain", chainKey))
				continue
			}
			s.logger.Error("publisher: multicall failed", zap.String("chain", chainKey), zap.Error(err))
			return
		}

		remaining = s.settleResults(chainID, remaining, outcome, fee, now)
	}
}

// buildCalls resolves each remaining subscription's method and regenerates
// its input (feed rate or random seed) fresh for this attempt.
func (s *Scheduler) buildCalls(ctx context.Context, subs []*subscription.Subscription) ([]multicall.Call, error) {
	calls := make([]multicall.Call, len(subs))
	for i, sub := range subs {
		resolved, err := s.resolver.ResolveStored(sub.Method)
		if err != nil {
			return nil, err
		}

		var pair *abiresolver.PairInput
		if resolved.MethodType.Kind == subscription.KindPair {
			p, err := s.input.PairInput(ctx, resolved.MethodType.PairID)
			if err != nil {
				return nil, err
			}
			pair = &p
		}

		var seed uint64
		if resolved.MethodType.Kind == subscription.KindRandom {
			seed = s.input.RandomSeed()
		}

		data, err := abiresolver.CallData(resolved, pair, seed)
		if err != nil {
			return nil, err
		}

		calls[i] = multicall.Call{
			Target:   common.HexToAddress(sub.ContractAddr),
			CallData: data,
			GasLimit: sub.Method.GasLimit,
		}
	}
	return calls, nil
}

// settleResults zips outcome.Results with subs (over gas limit stops the
// subscription, zero used gas retries, anything else settles) and returns
// the subset to retry on the next attempt.
func (s *Scheduler) settleResults(chainID *big.Int, subs []*subscription.Subscription, outcome multicall.Outcome, fee *big.Int, now *big.Int) []*subscription.Subscription {
	var retry []*subscription.Subscription

	for i, sub := range subs {
		if i >= len(outcome.Results) {
			// Fewer results than calls is the same corruption class as an
			// empty vector; keep the tail for the next attempt rather than guess.
			retry = append(retry, sub)
			continue
		}
		result := outcome.Results[i]

		switch {
		case result.UsedGas != nil && result.UsedGas.Cmp(sub.Method.GasLimit) > 0:
			if err := s.store.Subscriptions.Stop(chainID, sub.ID); err != nil {
				s.logger.Error("publisher: stop over-limit subscription", zap.Uint64("sub", sub.ID), zap.Error(err))
			}
		case result.UsedGas == nil || result.UsedGas.Sign() == 0:
			retry = append(retry, sub)
		default:
			s.settle(chainID, sub, outcome.GasPrice, fee, now)
		}
	}

	return retry
}

// settle applies the charge + fee-credit + last_update advance atomically
// via Ledger.Settle, so no reader ever observes the owner charged without
// the PMA credited. A failed charge (owner balance moved between selection
// and settlement) is logged and the subscription's last_update is left
// untouched; it stays in the store and is reconsidered next tick.
func (s *Scheduler) settle(chainID *big.Int, sub *subscription.Subscription, gasPrice, fee *big.Int, now *big.Int) {
	charge := new(big.Int).Mul(gasPrice, new(big.Int).Add(sub.Method.GasLimit, big.NewInt(extraGasUnits)))
	charge.Add(charge, fee)

	if err := s.store.Balances.Settle(chainID, sub.Owner, s.pma, charge, fee); err != nil {
		s.logger.Error("publisher: settle failed", zap.Uint64("sub", sub.ID), zap.Error(err))
		return
	}
	s.store.Subscriptions.MarkSettled(chainID, sub.ID, now)
}
