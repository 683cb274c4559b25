package balance

import (
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
)

func setupChain(t *testing.T, l *Ledger, chainID *big.Int) {
	t.Helper()
	if err := l.InitChain(chainID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateAddGet(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)

	if err := l.Create(chainID, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	if err := l.AddAmount(chainID, addr, big.NewInt(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := l.Get(chainID, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("got %s, want 1000", got)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)
	err := l.Create(chainID, addr)
	if !errors.Is(err, domainerr.ErrBalanceAlreadyExists) {
		t.Fatalf("expected ErrBalanceAlreadyExists, got %v", err)
	}
}

func TestReduceInsufficientFunds(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)
	_ = l.AddAmount(chainID, addr, big.NewInt(10))

	err := l.Reduce(chainID, addr, big.NewInt(20))
	if !errors.Is(err, domainerr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSaveNonceRejectsReplay(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)

	if err := l.SaveNonce(chainID, addr, big.NewInt(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := l.SaveNonce(chainID, addr, big.NewInt(5))
	if !errors.Is(err, domainerr.ErrNonceAlreadyExists) {
		t.Fatalf("expected ErrNonceAlreadyExists, got %v", err)
	}
}

func TestValueForWithdrawReservesGasAndZeroes(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)

	gasPrice := big.NewInt(2)
	gas := new(big.Int).Mul(big.NewInt(ETHTransferGasLimit), gasPrice)
	funded := new(big.Int).Add(gas, big.NewInt(500))
	_ = l.AddAmount(chainID, addr, funded)

	value, err := l.ValueForWithdraw(chainID, addr, gasPrice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("got %s, want 500", value)
	}

	remaining, err := l.Get(chainID, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("expected balance to be zeroed, got %s", remaining)
	}
}

func TestValueForWithdrawInsufficientForGas(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)
	_ = l.AddAmount(chainID, addr, big.NewInt(1))

	_, err := l.ValueForWithdraw(chainID, addr, big.NewInt(1))
	if !errors.Is(err, domainerr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestIsSufficient(t *testing.T) {
	l := New()
	chainID := big.NewInt(1)
	setupChain(t, l, chainID)
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	_ = l.Create(chainID, addr)
	_ = l.AddAmount(chainID, addr, big.NewInt(100))

	ok, err := l.IsSufficient(chainID, addr, big.NewInt(50))
	if err != nil || !ok {
		t.Fatalf("expected sufficient, got ok=%v err=%v", ok, err)
	}
	ok, err = l.IsSufficient(chainID, addr, big.NewInt(500))
	if err != nil || ok {
		t.Fatalf("expected insufficient, got ok=%v err=%v", ok, err)
	}
}
