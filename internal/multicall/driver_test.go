package multicall

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/signer"
)

// fakeChainClient is a hand-rolled stand-in for ethclient.Client.
type fakeChainClient struct {
	nonce      uint64
	gasPrice   *big.Int
	sendErr    error
	receipt    *types.Receipt
	callReturn []byte
	callErr    error
	sentTxs    []*types.Transaction
}

func (f *fakeChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTxs = append(f.sentTxs, tx)
	return nil
}

func (f *fakeChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receipt == nil {
		return nil, errors.New("not found")
	}
	return f.receipt, nil
}

func (f *fakeChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callReturn, f.callErr
}

func packResults(t *testing.T, results []Result) []byte {
	t.Helper()
	type tuple struct {
		Success    bool
		UsedGas    *big.Int
		ReturnData []byte
	}
	tuples := make([]tuple, len(results))
	for i, r := range results {
		tuples[i] = tuple{Success: r.Success, UsedGas: r.UsedGas, ReturnData: r.ReturnData}
	}
	data, err := ParsedABI.Methods["multicall"].Outputs.Pack(tuples)
	if err != nil {
		t.Fatalf("pack results: %v", err)
	}
	return data
}

func newTestDriver(t *testing.T, client *fakeChainClient) (*Driver, common.Address) {
	t.Helper()
	mock, err := signer.NewMock([]byte("multicall-test-seed"))
	if err != nil {
		t.Fatalf("new mock signer: %v", err)
	}
	addr, err := mock.PublicAddress(context.Background())
	if err != nil {
		t.Fatalf("public address: %v", err)
	}
	return New(client, mock, big.NewInt(1), nil), addr
}

func TestMulticallHappyPath(t *testing.T) {
	resultBytes := packResults(t, []Result{
		{Success: true, UsedGas: big.NewInt(50_000), ReturnData: nil},
	})

	client := &fakeChainClient{
		nonce:      3,
		gasPrice:   big.NewInt(10),
		receipt:    &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
		callReturn: resultBytes,
	}
	driver, _ := newTestDriver(t, client)

	calls := []Call{{
		Target:   common.HexToAddress("0x000000000000000000000000000000000000aa"),
		CallData: []byte{0x01, 0x02},
		GasLimit: big.NewInt(50_000),
	}}

	outcome, err := driver.Multicall(context.Background(), common.HexToAddress("0xbb"), calls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
	if outcome.Results[0].UsedGas.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("unexpected used gas: %s", outcome.Results[0].UsedGas)
	}
	if outcome.GasPrice.Cmp(big.NewInt(12)) != 0 {
		t.Fatalf("expected gas price 12 (10/10*12), got %s", outcome.GasPrice)
	}
	if len(client.sentTxs) != 1 {
		t.Fatalf("expected exactly one broadcast tx, got %d", len(client.sentTxs))
	}
}

func TestMulticallEmptyResultIsCorruption(t *testing.T) {
	client := &fakeChainClient{
		nonce:      1,
		gasPrice:   big.NewInt(10),
		receipt:    &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(5)},
		callReturn: packResults(t, nil),
	}
	driver, _ := newTestDriver(t, client)

	calls := []Call{{
		Target:   common.HexToAddress("0xaa"),
		CallData: []byte{0x01},
		GasLimit: big.NewInt(1_000),
	}}

	_, err := driver.Multicall(context.Background(), common.HexToAddress("0xbb"), calls)
	if !errors.Is(err, domainerr.ErrCorruptedMulticall) {
		t.Fatalf("expected ErrCorruptedMulticall, got %v", err)
	}
}

func TestMulticallTxFailedReceipt(t *testing.T) {
	client := &fakeChainClient{
		nonce:    1,
		gasPrice: big.NewInt(10),
		receipt:  &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)},
	}
	driver, _ := newTestDriver(t, client)

	calls := []Call{{Target: common.HexToAddress("0xaa"), CallData: []byte{0x01}, GasLimit: big.NewInt(1_000)}}
	_, err := driver.Multicall(context.Background(), common.HexToAddress("0xbb"), calls)
	if !errors.Is(err, domainerr.ErrTxFailed) {
		t.Fatalf("expected ErrTxFailed, got %v", err)
	}
}

func TestMultiTransferEmptyIsNoop(t *testing.T) {
	client := &fakeChainClient{nonce: 1, gasPrice: big.NewInt(10)}
	driver, _ := newTestDriver(t, client)
	if err := driver.MultiTransfer(context.Background(), common.HexToAddress("0xaa"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.sentTxs) != 0 {
		t.Fatalf("expected no broadcast for empty transfer batch")
	}
}
