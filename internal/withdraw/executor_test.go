package withdraw

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/multicall"
)

type fakeTransferer struct {
	calls   [][]multicall.Transfer
	failOn  int // 0-indexed call number that returns an error, -1 for never
	callNum int
}

func (f *fakeTransferer) MultiTransfer(ctx context.Context, target common.Address, transfers []multicall.Transfer) error {
	defer func() { f.callNum++ }()
	f.calls = append(f.calls, transfers)
	if f.callNum == f.failOn {
		return errors.New("transport error")
	}
	return nil
}

func TestExecuteChainFlushesAllWindows(t *testing.T) {
	q := New()
	chainID := big.NewInt(1)
	q.InitChain(chainID)
	for i := 0; i < 120; i++ {
		_ = q.Push(chainID, Request{Amount: big.NewInt(1), Receiver: common.HexToAddress("0xaa")})
	}

	transferer := &fakeTransferer{failOn: -1}
	exec := NewExecutor(q, nil)
	if err := exec.ExecuteChain(context.Background(), chainID, common.HexToAddress("0xbb"), transferer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(transferer.calls) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(transferer.calls))
	}
	if !q.IsEmpty(chainID) {
		t.Fatalf("expected queue drained")
	}
}

func TestExecuteChainPreservesQueueOnFailure(t *testing.T) {
	q := New()
	chainID := big.NewInt(1)
	q.InitChain(chainID)
	for i := 0; i < 150; i++ {
		_ = q.Push(chainID, Request{Amount: big.NewInt(1), Receiver: common.HexToAddress("0xaa")})
	}

	transferer := &fakeTransferer{failOn: 1} // second window fails
	exec := NewExecutor(q, nil)
	err := exec.ExecuteChain(context.Background(), chainID, common.HexToAddress("0xbb"), transferer)
	if err == nil {
		t.Fatalf("expected error from failing window")
	}

	remaining := q.Peek(chainID)
	if len(remaining) != 50 {
		t.Fatalf("expected 50 requests preserved from the failed window, got %d", len(remaining))
	}
}
