package withdraw

import (
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
)

func TestPushRequiresKnownChain(t *testing.T) {
	q := New()
	err := q.Push(big.NewInt(1), Request{Amount: big.NewInt(1), Receiver: common.HexToAddress("0xaa")})
	if !errors.Is(err, domainerr.ErrChainNotFound) {
		t.Fatalf("expected ErrChainNotFound, got %v", err)
	}
}

func TestPushAndBatches(t *testing.T) {
	q := New()
	chainID := big.NewInt(1)
	q.InitChain(chainID)

	for i := 0; i < 150; i++ {
		if err := q.Push(chainID, Request{Amount: big.NewInt(int64(i)), Receiver: common.HexToAddress("0xaa")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	batches := q.Batches(chainID)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0]) != BatchSize || len(batches[1]) != 50 {
		t.Fatalf("unexpected batch sizes: %d, %d", len(batches[0]), len(batches[1]))
	}

	q.PopFront(chainID, 150)
	if !q.IsEmpty(chainID) {
		t.Fatalf("expected queue empty after popping everything")
	}
}

func TestDeinitChainDropsQueue(t *testing.T) {
	q := New()
	chainID := big.NewInt(7)
	q.InitChain(chainID)
	_ = q.Push(chainID, Request{Amount: big.NewInt(1), Receiver: common.HexToAddress("0xaa")})
	q.DeinitChain(chainID)
	err := q.Push(chainID, Request{Amount: big.NewInt(1), Receiver: common.HexToAddress("0xaa")})
	if !errors.Is(err, domainerr.ErrChainNotFound) {
		t.Fatalf("expected ErrChainNotFound after deinit, got %v", err)
	}
}
