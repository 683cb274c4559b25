package chainreg

import (
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/ethereum/go-ethereum/common"
)

func TestAddAndGet(t *testing.T) {
	r := New()
	err := r.Add(AddRequest{
		ChainID:       big.NewInt(137),
		RPC:           "https://rpc.example/polygon",
		MinBalance:    big.NewInt(1000),
		BlockGasLimit: big.NewInt(30_000_000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chain, err := r.Get(big.NewInt(137))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.MulticallAddress != common.HexToAddress(DefaultMulticallContract) {
		t.Fatalf("expected default multicall contract back-fill, got %s", chain.MulticallAddress)
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	r := New()
	req := AddRequest{ChainID: big.NewInt(1), RPC: "https://rpc.example", MinBalance: big.NewInt(1)}
	if err := r.Add(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Add(req)
	if !errors.Is(err, domainerr.ErrChainAlreadyExists) {
		t.Fatalf("expected ErrChainAlreadyExists, got %v", err)
	}
}

func TestAddRejectsBadRPC(t *testing.T) {
	r := New()
	err := r.Add(AddRequest{ChainID: big.NewInt(1), RPC: "not-a-url", MinBalance: big.NewInt(1)})
	if !errors.Is(err, domainerr.ErrInvalidChainRPC) {
		t.Fatalf("expected ErrInvalidChainRPC, got %v", err)
	}
}

func TestRemoveUnknownChain(t *testing.T) {
	r := New()
	err := r.Remove(big.NewInt(999))
	if !errors.Is(err, domainerr.ErrChainNotFound) {
		t.Fatalf("expected ErrChainNotFound, got %v", err)
	}
}

func TestUpdatePatchesOnlyGivenFields(t *testing.T) {
	r := New()
	_ = r.Add(AddRequest{ChainID: big.NewInt(1), RPC: "https://a.example", MinBalance: big.NewInt(10)})

	newMin := big.NewInt(20)
	if err := r.Update(big.NewInt(1), Patch{MinBalance: newMin}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain, _ := r.Get(big.NewInt(1))
	if chain.MinBalance.Cmp(newMin) != 0 {
		t.Fatalf("expected min balance updated to %s, got %s", newMin, chain.MinBalance)
	}
	if chain.RPC != "https://a.example" {
		t.Fatalf("expected rpc untouched, got %s", chain.RPC)
	}
}

func TestExistsAndGetAll(t *testing.T) {
	r := New()
	_ = r.Add(AddRequest{ChainID: big.NewInt(1), RPC: "https://a.example", MinBalance: big.NewInt(10)})
	_ = r.Add(AddRequest{ChainID: big.NewInt(2), RPC: "https://b.example", MinBalance: big.NewInt(10)})

	if !r.Exists(big.NewInt(1)) || !r.Exists(big.NewInt(2)) {
		t.Fatal("expected both chains to exist")
	}
	if r.Exists(big.NewInt(3)) {
		t.Fatal("expected chain 3 to not exist")
	}
	if len(r.GetAll()) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(r.GetAll()))
	}
}
