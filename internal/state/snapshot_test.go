package state

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/subscription"
	"github.com/chainrelay/publisher/internal/withdraw"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	owner := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	pma := common.HexToAddress("0x000000000000000000000000000000000000aa")

	s := New(GlobalConfig{
		TxFee:           big.NewInt(500),
		KeyName:         "test_key",
		SubsLimitWallet: 10,
		SubsLimitTotal:  1000,
		TimerFrequency:  big.NewInt(1800),
		PMA:             pma,
		Controllers:     []string{"0xController1", "0xController2"},
	}, "handle-1")

	chainID := big.NewInt(1)
	if err := s.AddChain(chainreg.AddRequest{
		ChainID: chainID, RPC: "https://rpc.example/1", MinBalance: big.NewInt(1000),
		BlockGasLimit: big.NewInt(30_000_000), Symbol: "ETH",
	}); err != nil {
		t.Fatalf("add chain: %v", err)
	}

	if err := s.Balances.Create(chainID, owner); err != nil {
		t.Fatalf("create balance: %v", err)
	}
	if err := s.Balances.AddAmount(chainID, owner, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("add amount: %v", err)
	}
	if err := s.Balances.SaveNonce(chainID, owner, big.NewInt(1)); err != nil {
		t.Fatalf("save nonce: %v", err)
	}

	sub, err := s.Subscriptions.Add(chainID, big.NewInt(1800), subscription.NewRequest{
		Owner:        owner,
		ContractAddr: "0x000000000000000000000000000000000000bb",
		Frequency:    big.NewInt(3600),
		Method: subscription.Method{
			Name:     "updatePrice",
			ABI:      `[{"name":"updatePrice"}]`,
			GasLimit: big.NewInt(200_000),
			MethodType: subscription.MethodType{
				Kind:   subscription.KindPair,
				PairID: "ETH/USDT",
			},
		},
	})
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	if err := s.Withdrawals.Push(chainID, withdraw.Request{
		Amount:   big.NewInt(500),
		Receiver: common.HexToAddress("0x000000000000000000000000000000000000cc"),
	}); err != nil {
		t.Fatalf("push withdraw request: %v", err)
	}

	s.Whitelist.Add(owner)

	dbPath := filepath.Join(t.TempDir(), "snapshot.db")
	db, err := SnapshotDB(dbPath)
	if err != nil {
		t.Fatalf("open snapshot db: %v", err)
	}
	defer db.Close()

	if err := Save(ctx, db, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := Load(ctx, db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := restored.Config()
	if cfg.KeyName != "test_key" || cfg.SubsLimitWallet != 10 || cfg.TimerFrequency.Cmp(big.NewInt(1800)) != 0 {
		t.Fatalf("config not restored faithfully: %+v", cfg)
	}
	if len(cfg.Controllers) != 2 || cfg.Controllers[0] != "0xController1" {
		t.Fatalf("controllers not restored: %v", cfg.Controllers)
	}

	if !restored.Chains.Exists(chainID) {
		t.Fatalf("chain not restored")
	}

	amount, err := restored.Balances.Get(chainID, owner)
	if err != nil || amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("balance not restored: %v, %v", amount, err)
	}

	restoredSub, err := restored.Subscriptions.Get(chainID, sub.ID)
	if err != nil {
		t.Fatalf("subscription not restored: %v", err)
	}
	if restoredSub.Method.MethodType.PairID != "ETH/USDT" || restoredSub.Frequency.Cmp(big.NewInt(3600)) != 0 {
		t.Fatalf("subscription fields not restored: %+v", restoredSub)
	}

	pending := restored.Withdrawals.Peek(chainID)
	if len(pending) != 1 || pending[0].Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("withdraw queue not restored: %+v", pending)
	}

	if !restored.Whitelist.IsWhitelisted(owner) {
		t.Fatalf("whitelist entry not restored")
	}

	if restored.Timer.ID() != "handle-1" {
		t.Fatalf("timer handle not restored, got %q", restored.Timer.ID())
	}
}
