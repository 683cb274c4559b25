package publisher

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/feebridge"
	"github.com/chainrelay/publisher/internal/multicall"
	"github.com/chainrelay/publisher/internal/state"
	"github.com/chainrelay/publisher/internal/subscription"
	"github.com/chainrelay/publisher/internal/withdraw"
)

// Both addresses use only decimal digits so EIP-55 checksumming (which only
// ever changes the case of a-f hex letters) is a no-op, avoiding the need to
// hand-compute a checksum for a literal in this test.
const (
	testOwner = "0x1234567890123456789012345678901234567890"
	testPMA   = "0x0000000000000000000000000000000000000001"
)

type scriptedDriver struct {
	outcomes []multicall.Outcome
	errs     []error
	calls    int
}

func (d *scriptedDriver) Multicall(ctx context.Context, target common.Address, calls []multicall.Call) (multicall.Outcome, error) {
	i := d.calls
	if i >= len(d.outcomes) {
		i = len(d.outcomes) - 1
	}
	d.calls++
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	return d.outcomes[i], err
}

func (d *scriptedDriver) MultiTransfer(ctx context.Context, target common.Address, transfers []multicall.Transfer) error {
	return nil
}

type fixedDriverSet struct {
	driver Driver
}

func (f *fixedDriverSet) Driver(chainID *big.Int) (Driver, error) {
	return f.driver, nil
}

type noopInput struct{}

func (noopInput) PairInput(ctx context.Context, pairID string) (abiresolver.PairInput, error) {
	return abiresolver.PairInput{}, nil
}
func (noopInput) RandomSeed() uint64 { return 0 }

func newTestFixture(t *testing.T, fee *big.Int, driver Driver) (*state.Store, *Scheduler, *big.Int, uint64) {
	t.Helper()

	chainID := big.NewInt(1)
	timerFreq := big.NewInt(1800)

	store := state.New(state.GlobalConfig{
		TimerFrequency:  timerFreq,
		SubsLimitWallet: 10,
		SubsLimitTotal:  1000,
	}, "initial-handle")

	if err := store.AddChain(chainreg.AddRequest{
		ChainID:    chainID,
		RPC:        "https://rpc.example/1",
		MinBalance: big.NewInt(1),
		Fee:        fee,
	}); err != nil {
		t.Fatalf("AddChain: %v", err)
	}

	if err := store.Balances.Create(chainID, testOwner); err != nil {
		t.Fatalf("Create owner balance: %v", err)
	}
	if err := store.Balances.Create(chainID, testPMA); err != nil {
		t.Fatalf("Create pma balance: %v", err)
	}
	if err := store.Balances.AddAmount(chainID, testOwner, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("fund owner: %v", err)
	}

	resolver, err := abiresolver.New()
	if err != nil {
		t.Fatalf("abiresolver.New: %v", err)
	}
	resolved, err := resolver.Resolve("report()", nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	sub, err := store.Subscriptions.Add(chainID, timerFreq, subscription.NewRequest{
		Owner:        testOwner,
		ContractAddr: "0x00000000000000000000000000000000000000bb",
		Frequency:    timerFreq,
		Method: subscription.Method{
			Name:     resolved.Name,
			ABI:      resolved.JSON,
			GasLimit: big.NewInt(50_000),
		},
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	feeBridge := feebridge.New(nil)
	drivers := &fixedDriverSet{driver: driver}
	withdrawExec := withdraw.NewExecutor(store.Withdrawals, nil)

	sched := New(store, resolver, feeBridge, drivers, noopInput{}, withdrawExec,
		common.HexToAddress(testPMA), func() string { return "next-handle" }, nil)

	return store, sched, chainID, sub.ID
}

func TestChargeAndSettle(t *testing.T) {
	driver := &scriptedDriver{
		outcomes: []multicall.Outcome{{
			Results:  []multicall.Result{{Success: true, UsedGas: big.NewInt(50_000)}},
			GasPrice: big.NewInt(12),
		}},
	}
	store, sched, chainID, _ := newTestFixture(t, big.NewInt(100), driver)

	now := big.NewInt(10_000)
	if err := sched.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	ownerBal, err := store.Balances.Get(chainID, testOwner)
	if err != nil {
		t.Fatalf("get owner balance: %v", err)
	}
	want := big.NewInt(9_398_700)
	if ownerBal.Cmp(want) != 0 {
		t.Fatalf("owner balance = %s, want %s", ownerBal, want)
	}

	pmaBal, err := store.Balances.Get(chainID, testPMA)
	if err != nil {
		t.Fatalf("get pma balance: %v", err)
	}
	if pmaBal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pma balance = %s, want 100", pmaBal)
	}
}

func TestGasLimitExceededStopsSubscription(t *testing.T) {
	driver := &scriptedDriver{
		outcomes: []multicall.Outcome{{
			Results:  []multicall.Result{{Success: true, UsedGas: big.NewInt(50_001)}},
			GasPrice: big.NewInt(12),
		}},
	}
	store, sched, chainID, _ := newTestFixture(t, big.NewInt(100), driver)

	if err := sched.Tick(context.Background(), big.NewInt(10_000)); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	ownerBal, err := store.Balances.Get(chainID, testOwner)
	if err != nil {
		t.Fatalf("get owner balance: %v", err)
	}
	if ownerBal.Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("owner balance changed: %s", ownerBal)
	}

	_, anyActive := store.Subscriptions.GetPublishable(big.NewInt(100_000))
	if anyActive {
		t.Fatalf("expected subscription stopped")
	}
}

func TestNoOpCallLeavesSubscriptionUnsettled(t *testing.T) {
	driver := &scriptedDriver{
		outcomes: []multicall.Outcome{{
			Results:  []multicall.Result{{Success: true, UsedGas: big.NewInt(0)}},
			GasPrice: big.NewInt(12),
		}},
	}
	store, sched, chainID, subID := newTestFixture(t, big.NewInt(100), driver)

	if err := sched.Tick(context.Background(), big.NewInt(10_000)); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if driver.calls != maxAttemptsPerChainPerTick {
		t.Fatalf("expected the loop to stop after %d attempts, got %d", maxAttemptsPerChainPerTick, driver.calls)
	}

	ownerBal, err := store.Balances.Get(chainID, testOwner)
	if err != nil {
		t.Fatalf("get owner balance: %v", err)
	}
	if ownerBal.Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("owner balance changed on a no-op call: %s", ownerBal)
	}

	groups, anyActive := store.Subscriptions.GetPublishable(big.NewInt(10_000))
	if !anyActive {
		t.Fatalf("expected subscription still active")
	}
	if len(groups[chainID.String()]) != 1 {
		t.Fatalf("expected subscription still due next tick, id %d", subID)
	}
}

func TestIdleTickFlushesAndDeactivatesWithoutRearm(t *testing.T) {
	driver := &scriptedDriver{}
	store, sched, _, subID := newTestFixture(t, big.NewInt(100), driver)

	if err := store.Subscriptions.Stop(big.NewInt(1), subID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	rearmed := false
	sched.nextTimerID = func() string { rearmed = true; return "unused" }

	if err := sched.Tick(context.Background(), big.NewInt(10_000)); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if rearmed {
		t.Fatalf("expected idle tick not to arm a next tick")
	}
	if store.Timer.IsActive() {
		t.Fatalf("expected timer deactivated after idle tick")
	}
	if store.Timer.ID() != "initial-handle" {
		t.Fatalf("expected timer handle unchanged, got %q", store.Timer.ID())
	}
}
