package api

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/ledger"
	"github.com/chainrelay/publisher/internal/numeric"
)

// Deposit credits a previously-broadcast transaction's value to its
// sender's balance, once: the receipt must already exist, be addressed to
// the PMA, and have succeeded, and its nonce must not already have been
// credited.
func (s *Service) Deposit(ctx context.Context, chainID *big.Int, txHash common.Hash) (*big.Int, error) {
	info, err := s.txFetcher.FetchTx(ctx, chainID, txHash)
	if err != nil {
		return nil, fmt.Errorf("api: deposit: %w", err)
	}
	if info.Status != 1 {
		return nil, fmt.Errorf("api: deposit tx %s: %w", txHash, domainerr.ErrTxFailed)
	}
	if (info.To == common.Address{}) {
		return nil, fmt.Errorf("api: deposit tx %s: %w", txHash, domainerr.ErrTxWithoutReceiver)
	}

	pma := s.store.Config().PMA
	if info.To != pma {
		return nil, fmt.Errorf("api: deposit tx %s: %w", txHash, domainerr.ErrTxNotSentToPMA)
	}

	from, err := numeric.Normalize(info.From.Hex())
	if err != nil {
		return nil, fmt.Errorf("api: deposit: %w", err)
	}

	if exists, err := s.store.Balances.Exists(chainID, from); err != nil {
		return nil, fmt.Errorf("api: deposit: %w", err)
	} else if !exists {
		if err := s.store.Balances.Create(chainID, from); err != nil {
			return nil, fmt.Errorf("api: deposit: %w", err)
		}
	}

	nonce := new(big.Int).SetUint64(info.Nonce)
	if err := s.store.Balances.SaveNonce(chainID, from, nonce); err != nil {
		return nil, fmt.Errorf("api: deposit: %w", err)
	}
	if err := s.store.Balances.AddAmount(chainID, from, info.Value); err != nil {
		return nil, fmt.Errorf("api: deposit: %w", err)
	}

	s.recordAudit(ctx, ledger.KindDeposit, chainID, from, info.Value, 0, txHash.Hex())

	return s.store.Balances.Get(chainID, from)
}
