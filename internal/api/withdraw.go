package api

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/ledger"
	"github.com/chainrelay/publisher/internal/withdraw"
)

// Withdraw zeroes out the caller's balance (less a reserve for the
// eventual transfer's own gas) and queues the remainder as an outbound
// transfer, kicking a withdraw pass immediately if the publisher is idle.
func (s *Service) Withdraw(ctx context.Context, chainID *big.Int, message, signature string) (*big.Int, error) {
	owner, err := s.authenticate(ctx, message, signature)
	if err != nil {
		return nil, fmt.Errorf("api: withdraw: %w", err)
	}

	gasPrice, err := s.txFetcher.GasPrice(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("api: withdraw: %w", err)
	}

	amount, err := s.store.Balances.ValueForWithdraw(chainID, owner, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("api: withdraw: %w", err)
	}

	req := withdraw.Request{Amount: new(big.Int).Set(amount), Receiver: common.HexToAddress(owner)}
	if err := s.store.Withdrawals.Push(chainID, req); err != nil {
		return nil, fmt.Errorf("api: withdraw: %w", err)
	}

	s.recordAudit(ctx, ledger.KindWithdraw, chainID, owner, amount, 0, "")
	s.kickTickIfIdle(true)

	return amount, nil
}
