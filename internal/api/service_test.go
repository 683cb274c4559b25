package api

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/state"
)

const (
	testOwner      = "0x1234567890123456789012345678901234567890"
	testPMA        = "0x0000000000000000000000000000000000000001"
	testController = "0x0000000000000000000000000000000000000002"
	testChainIDInt = 1
)

// fakeVerifier treats the message itself as the recovered address, so tests
// can authenticate as any address without computing a real signature.
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, message, signature string) (string, error) {
	if signature == "" {
		return "", domainerr.ErrNotWhitelisted
	}
	return message, nil
}

type fakeTxFetcher struct {
	tx       TxInfo
	gasPrice *big.Int
}

func (f *fakeTxFetcher) FetchTx(ctx context.Context, chainID *big.Int, txHash common.Hash) (TxInfo, error) {
	return f.tx, nil
}

func (f *fakeTxFetcher) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	return f.gasPrice, nil
}

func newTestService(t *testing.T) (*Service, *state.Store, *big.Int) {
	t.Helper()

	chainID := big.NewInt(testChainIDInt)
	store := state.New(state.GlobalConfig{
		TimerFrequency:  big.NewInt(1800),
		SubsLimitWallet: 10,
		SubsLimitTotal:  1000,
		PMA:             common.HexToAddress(testPMA),
		Controllers:     []string{testController},
	}, "initial-handle")

	if err := store.AddChain(chainreg.AddRequest{
		ChainID:    chainID,
		RPC:        "https://rpc.example/1",
		MinBalance: big.NewInt(1),
	}); err != nil {
		t.Fatalf("AddChain: %v", err)
	}
	store.Whitelist.Add(testOwner)

	if err := store.Balances.Create(chainID, testOwner); err != nil {
		t.Fatalf("create owner balance: %v", err)
	}
	if err := store.Balances.AddAmount(chainID, testOwner, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund owner: %v", err)
	}

	resolver, err := abiresolver.New()
	if err != nil {
		t.Fatalf("abiresolver.New: %v", err)
	}

	fetcher := &fakeTxFetcher{
		tx: TxInfo{
			To:     common.HexToAddress(testPMA),
			Value:  big.NewInt(500),
			Nonce:  0,
			From:   common.HexToAddress(testOwner),
			Status: 1,
		},
		gasPrice: big.NewInt(1),
	}

	svc := New(store, fakeVerifier{}, resolver, fetcher, nil, nil, nil)
	return svc, store, chainID
}

func TestDepositCreditsSenderOnce(t *testing.T) {
	svc, store, chainID := newTestService(t)

	balance, err := svc.Deposit(context.Background(), chainID, common.HexToHash("0xaa"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000_500)) != 0 {
		t.Fatalf("balance = %s, want 1000500", balance)
	}

	if _, err := svc.Deposit(context.Background(), chainID, common.HexToHash("0xaa")); err == nil {
		t.Fatalf("expected second deposit with the same nonce to fail")
	}

	_ = store
}

func TestDepositRejectsWrongReceiver(t *testing.T) {
	svc, _, chainID := newTestService(t)
	svc.txFetcher.(*fakeTxFetcher).tx.To = common.HexToAddress("0x00000000000000000000000000000000000099")

	if _, err := svc.Deposit(context.Background(), chainID, common.HexToHash("0xbb")); err == nil {
		t.Fatalf("expected deposit not sent to the pma to fail")
	}
}

func TestWithdrawZeroesBalanceAndQueuesTransfer(t *testing.T) {
	svc, store, chainID := newTestService(t)

	amount, err := svc.Withdraw(context.Background(), chainID, testOwner, "sig")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if amount.Sign() <= 0 {
		t.Fatalf("expected a positive withdrawable amount, got %s", amount)
	}

	remaining, err := store.Balances.Get(chainID, testOwner)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("expected balance zeroed after withdraw, got %s", remaining)
	}
}

func TestWithdrawRejectsUnauthenticatedCaller(t *testing.T) {
	svc, _, chainID := newTestService(t)
	if _, err := svc.Withdraw(context.Background(), chainID, testOwner, ""); err == nil {
		t.Fatalf("expected empty signature to fail authentication")
	}
}

func TestSubscribeRejectsInsufficientBalance(t *testing.T) {
	svc, store, chainID := newTestService(t)
	if err := store.Balances.Reduce(chainID, testOwner, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("drain balance: %v", err)
	}

	_, err := svc.Subscribe(context.Background(), SubscribeRequest{
		ChainID:      chainID,
		Label:        "test",
		ContractAddr: "0x0000000000000000000000000000000000000bbb",
		Signature:    "sig",
		Message:      testOwner,
		Frequency:    big.NewInt(1800),
		MethodSig:    "report()",
		GasLimit:     big.NewInt(50_000),
	})
	if !domainerr.Is(err, domainerr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
}

func TestSubscribeThenStopAndStart(t *testing.T) {
	svc, store, chainID := newTestService(t)

	sub, err := svc.Subscribe(context.Background(), SubscribeRequest{
		ChainID:      chainID,
		Label:        "test",
		ContractAddr: "0x0000000000000000000000000000000000000bbb",
		Signature:    "sig",
		Message:      testOwner,
		Frequency:    big.NewInt(1800),
		MethodSig:    "report()",
		GasLimit:     big.NewInt(50_000),
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := svc.StopSubscription(context.Background(), chainID, sub.ID, testOwner, "sig"); err != nil {
		t.Fatalf("StopSubscription: %v", err)
	}
	stored, err := store.Subscriptions.Get(chainID, sub.ID)
	if err != nil {
		t.Fatalf("get sub: %v", err)
	}
	if stored.Status.IsActive {
		t.Fatalf("expected subscription stopped")
	}

	if err := svc.StartSubscription(context.Background(), chainID, sub.ID, testOwner, "sig"); err != nil {
		t.Fatalf("StartSubscription: %v", err)
	}
	stored, err = store.Subscriptions.Get(chainID, sub.ID)
	if err != nil {
		t.Fatalf("get sub: %v", err)
	}
	if !stored.Status.IsActive {
		t.Fatalf("expected subscription restarted")
	}
}

func TestStopSubscriptionRejectsNonOwner(t *testing.T) {
	svc, store, chainID := newTestService(t)
	store.Whitelist.Add(testController)

	sub, err := svc.Subscribe(context.Background(), SubscribeRequest{
		ChainID:      chainID,
		Label:        "test",
		ContractAddr: "0x0000000000000000000000000000000000000bbb",
		Signature:    "sig",
		Message:      testOwner,
		Frequency:    big.NewInt(1800),
		MethodSig:    "report()",
		GasLimit:     big.NewInt(50_000),
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err = svc.StopSubscription(context.Background(), chainID, sub.ID, testController, "sig")
	if !domainerr.Is(err, domainerr.ErrNotController) {
		t.Fatalf("expected not-controller (not-owner) error, got %v", err)
	}
}

func TestAdminEndpointsRejectNonController(t *testing.T) {
	svc, _, chainID := newTestService(t)

	if err := svc.UpdateChainRPC(context.Background(), testOwner, "sig", chainID, "https://new.example"); !domainerr.Is(err, domainerr.ErrNotController) {
		t.Fatalf("expected not-controller error, got %v", err)
	}
}

func TestAdminUpdateTxFeeAndClearBalance(t *testing.T) {
	svc, store, chainID := newTestService(t)

	if err := svc.UpdateTxFee(context.Background(), testController, "sig", big.NewInt(42)); err != nil {
		t.Fatalf("UpdateTxFee: %v", err)
	}
	if store.Config().TxFee.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("tx fee not updated")
	}

	if err := svc.ClearBalance(context.Background(), testController, "sig", chainID, testOwner); err != nil {
		t.Fatalf("ClearBalance: %v", err)
	}
	balance, err := store.Balances.Get(chainID, testOwner)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected balance cleared, got %s", balance)
	}
}

func TestWhitelistBlacklistStopsSubscriptions(t *testing.T) {
	svc, store, chainID := newTestService(t)

	sub, err := svc.Subscribe(context.Background(), SubscribeRequest{
		ChainID:      chainID,
		Label:        "test",
		ContractAddr: "0x0000000000000000000000000000000000000bbb",
		Signature:    "sig",
		Message:      testOwner,
		Frequency:    big.NewInt(1800),
		MethodSig:    "report()",
		GasLimit:     big.NewInt(50_000),
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := svc.WhitelistBlacklist(context.Background(), testController, "sig", testOwner); err != nil {
		t.Fatalf("WhitelistBlacklist: %v", err)
	}

	stored, err := store.Subscriptions.Get(chainID, sub.ID)
	if err != nil {
		t.Fatalf("get sub: %v", err)
	}
	if stored.Status.IsActive {
		t.Fatalf("expected subscription stopped after blacklist")
	}
	if store.Whitelist.IsWhitelisted(testOwner) {
		t.Fatalf("expected address no longer whitelisted after blacklist")
	}
}
