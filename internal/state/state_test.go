package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/subscription"
)

func testStore() *Store {
	return New(GlobalConfig{
		TimerFrequency:  big.NewInt(1800),
		SubsLimitWallet: 10,
		SubsLimitTotal:  1000,
	}, "initial-handle")
}

func TestAddChainInitializesDependents(t *testing.T) {
	s := testStore()
	chainID := big.NewInt(1)
	if err := s.AddChain(chainreg.AddRequest{
		ChainID:    chainID,
		RPC:        "https://rpc.example/1",
		MinBalance: big.NewInt(1000),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Balances.Create(chainID, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"); err != nil {
		t.Fatalf("balances not initialized: %v", err)
	}
	if !s.Withdrawals.IsEmpty(chainID) {
		t.Fatalf("expected empty withdraw queue")
	}
}

func TestAddChainRoundTripsWithRemove(t *testing.T) {
	s := testStore()
	chainID := big.NewInt(1)
	req := chainreg.AddRequest{ChainID: chainID, RPC: "https://rpc.example/1", MinBalance: big.NewInt(1000)}
	if err := s.AddChain(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RemoveChain(chainID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Chains.Exists(chainID) {
		t.Fatalf("expected chain removed")
	}
	if err := s.AddChain(req); err != nil {
		t.Fatalf("re-add after remove should succeed, got: %v", err)
	}
}

func TestRemoveChainCascadesSubscriptions(t *testing.T) {
	s := testStore()
	chainID := big.NewInt(1)
	if err := s.AddChain(chainreg.AddRequest{ChainID: chainID, RPC: "https://rpc.example/1", MinBalance: big.NewInt(1000)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := s.Subscriptions.Add(chainID, big.NewInt(1800), subscription.NewRequest{
		Owner:        "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ContractAddr: "0x000000000000000000000000000000000000aa",
		Frequency:    big.NewInt(1800),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.RemoveChain(chainID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, anyActive := s.Subscriptions.GetPublishable(big.NewInt(10_000))
	if anyActive {
		t.Fatalf("expected no active subscriptions after cascade-remove")
	}
}

func TestRemoveChainUnknownFails(t *testing.T) {
	s := testStore()
	err := s.RemoveChain(big.NewInt(99))
	if !errors.Is(err, domainerr.ErrChainNotFound) {
		t.Fatalf("expected ErrChainNotFound, got %v", err)
	}
}

func TestTimerUninitializedFails(t *testing.T) {
	timer := &Timer{}
	if err := timer.Activate(); !errors.Is(err, domainerr.ErrTimerUninitialized) {
		t.Fatalf("expected ErrTimerUninitialized, got %v", err)
	}
}

func TestTimerActivateDeactivate(t *testing.T) {
	timer := NewTimer("handle-1")
	if err := timer.Activate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timer.IsActive() {
		t.Fatalf("expected timer active")
	}
	timer.Deactivate()
	if timer.IsActive() {
		t.Fatalf("expected timer inactive")
	}
	timer.Rearm("handle-2")
	if timer.ID() != "handle-2" {
		t.Fatalf("expected rearmed handle")
	}
}
