package withdraw

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/multicall"
)

// Transferer is the subset of the multicall driver the executor needs: one
// chain's signed multitransfer call.
type Transferer interface {
	MultiTransfer(ctx context.Context, target common.Address, transfers []multicall.Transfer) error
}

// Executor drains the withdraw queue through each chain's multicall
// contract, in bounded batches.
type Executor struct {
	queue  *Queue
	logger *zap.Logger
}

// NewExecutor returns an Executor draining q.
func NewExecutor(q *Queue, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{queue: q, logger: logger}
}

// ExecuteChain flushes every pending window of chainID's withdraw queue
// through driver, one multitransfer per window of up to BatchSize
// transfers. A window's requests are only popped from the queue after that
// window's transaction lands; a transport failure on any window stops the
// flush and preserves everything from that window onward for the next
// tick.
func (e *Executor) ExecuteChain(ctx context.Context, chainID *big.Int, multicallContract common.Address, driver Transferer) error {
	for _, window := range e.queue.Batches(chainID) {
		transfers := make([]multicall.Transfer, len(window))
		for i, req := range window {
			transfers[i] = multicall.Transfer{Target: req.Receiver, Value: req.Amount}
		}

		if err := driver.MultiTransfer(ctx, multicallContract, transfers); err != nil {
			e.logger.Warn("withdraw flush failed, queue preserved for next tick",
				zap.String("chain", chainID.String()), zap.Int("window", len(window)), zap.Error(err))
			return err
		}

		e.queue.PopFront(chainID, len(window))
	}
	return nil
}
