package multicall

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/numeric"
	"github.com/chainrelay/publisher/internal/rpcretry"
	"github.com/chainrelay/publisher/internal/signer"
)

// Driver signs and submits multicall/multitransfer transactions against a
// single chain, on behalf of the shared PMA identity.
type Driver struct {
	client  ChainClient
	signer  signer.Signer
	chainID *big.Int
	logger  *zap.Logger
}

// New returns a Driver for one chain.
func New(client ChainClient, s signer.Signer, chainID *big.Int, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{client: client, signer: s, chainID: chainID, logger: logger}
}

// Outcome pairs a completed multicall with the gas price it used, needed
// by the scheduler's settlement arithmetic.
type Outcome struct {
	Results  []Result
	GasPrice *big.Int
}

// Multicall aggregates calls into one signed transaction against target,
// submits it, waits for its receipt, then re-parses the structured results
// via eth_call at the receipt's block.
//
// A successfully-mined transaction whose decoded result vector is empty is
// reported as ErrCorruptedMulticall; the scheduler logs it and resubmits the
// same batch on its next attempt within the tick.
func (d *Driver) Multicall(ctx context.Context, target common.Address, calls []Call) (Outcome, error) {
	if len(calls) == 0 {
		return Outcome{GasPrice: new(big.Int)}, nil
	}

	data, err := packMulticall(calls)
	if err != nil {
		return Outcome{}, fmt.Errorf("multicall: pack: %w", err)
	}

	gasLimit := big.NewInt(BaseGas + MulticallOverhead)
	for _, c := range calls {
		gasLimit = numeric.SaturatingAdd(gasLimit, c.GasLimit)
	}

	receipt, gasPrice, err := d.signAndSend(ctx, target, data, gasLimit, nil)
	if err != nil {
		return Outcome{}, err
	}

	results, err := d.parseResults(ctx, target, data, receipt.BlockNumber)
	if err != nil {
		return Outcome{}, err
	}
	if len(results) == 0 {
		d.logger.Error("multicall returned zero results for a non-empty batch",
			zap.String("chain", d.chainID.String()), zap.Int("calls", len(calls)))
		return Outcome{}, fmt.Errorf("multicall: %w", domainerr.ErrCorruptedMulticall)
	}

	return Outcome{Results: results, GasPrice: gasPrice}, nil
}

// MultiTransfer aggregates transfers into one signed, value-carrying
// transaction against target and waits for its receipt.
func (d *Driver) MultiTransfer(ctx context.Context, target common.Address, transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	data, err := packMultiTransfer(transfers)
	if err != nil {
		return fmt.Errorf("multitransfer: pack: %w", err)
	}

	total := new(big.Int)
	for _, t := range transfers {
		total.Add(total, t.Value)
	}

	perTransfer := numeric.MulUint64(big.NewInt(GasPerTransfer), uint64(len(transfers)))
	gasLimit := numeric.SaturatingAdd(big.NewInt(BaseGas+MultiTransferOverhead), perTransfer)

	_, _, err = d.signAndSend(ctx, target, data, gasLimit, total)
	return err
}

// signAndSend implements the shared nonce-fetch/gas-price/sign/broadcast/
// receipt-wait pipeline used by both Multicall and MultiTransfer. The
// nonce is fetched fresh inside each call, which keeps nonce use serial
// as long as at most one transaction per chain is in flight.
func (d *Driver) signAndSend(ctx context.Context, target common.Address, data []byte, gasLimit *big.Int, value *big.Int) (*types.Receipt, *big.Int, error) {
	pma, err := d.signer.PublicAddress(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: signer address: %w", domainerr.ErrSignerFailed)
	}

	nonce, err := rpcretry.Do(ctx, func(ctx context.Context) (uint64, error) {
		n, err := d.client.PendingNonceAt(ctx, pma)
		return n, domainerr.AsTransport(err)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: nonce: %w", err)
	}

	suggested, err := rpcretry.Do(ctx, func(ctx context.Context) (*big.Int, error) {
		price, err := d.client.SuggestGasPrice(ctx)
		return price, domainerr.AsTransport(err)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: gas price: %w", err)
	}
	gasPrice := numeric.GasPriceWithMultiplier(suggested)

	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTransaction(nonce, target, value, numeric.ToUint64(gasLimit), gasPrice, data)

	ethSigner := types.LatestSignerForChainID(d.chainID)
	digest := ethSigner.Hash(tx)

	r, s, err := d.signer.Sign(ctx, digest)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: sign: %w: %w", domainerr.ErrSignerFailed, err)
	}

	v, err := signer.ResolveRecoveryID(digest, r, s, signer.LegacyRecoveryCandidates, pma)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: %w", err)
	}

	sig := make([]byte, 65)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = v

	signedTx, err := tx.WithSignature(ethSigner, sig)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: attach signature: %w", domainerr.ErrSignerFailed)
	}

	if _, err := rpcretry.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, domainerr.AsTransport(d.client.SendTransaction(ctx, signedTx))
	}); err != nil {
		return nil, nil, fmt.Errorf("multicall: broadcast: %w", err)
	}

	receipt, err := d.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil, fmt.Errorf("multicall: tx %s: %w", signedTx.Hash(), domainerr.ErrTxFailed)
	}

	return receipt, gasPrice, nil
}

func (d *Driver) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, ReceiptTimeout*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("multicall: tx %s: %w", hash, domainerr.ErrTxTimeout)
		}
	}
}

// parseResults re-invokes the multicall function at the receipt's block via
// eth_call, since the raw transaction's log does not carry the structured
// per-call results.
func (d *Driver) parseResults(ctx context.Context, target common.Address, callData []byte, blockNumber *big.Int) ([]Result, error) {
	raw, err := rpcretry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		out, err := d.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: callData}, blockNumber)
		return out, domainerr.AsTransport(err)
	})
	if err != nil {
		return nil, fmt.Errorf("multicall: eth_call re-parse: %w", err)
	}
	return unpackMulticallResults(raw)
}

// packMulticall clamps each call's gas limit into the uint256 domain on
// the way into the ABI encoder, so a negative or oversized accounting
// value can never reach the wire.
func packMulticall(calls []Call) ([]byte, error) {
	tuples := make([]rawCallTuple, len(calls))
	for i, c := range calls {
		tuples[i] = rawCallTuple{Target: c.Target, CallData: c.CallData, GasLimit: numeric.FromU256(numeric.ToU256(c.GasLimit))}
	}
	return ParsedABI.Pack("multicall", tuples)
}

func packMultiTransfer(transfers []Transfer) ([]byte, error) {
	tuples := make([]rawTransferTuple, len(transfers))
	for i, t := range transfers {
		tuples[i] = rawTransferTuple{Target: t.Target, Value: numeric.FromU256(numeric.ToU256(t.Value))}
	}
	return ParsedABI.Pack("multitransfer", tuples)
}

// unpackMulticallResults decodes the multicall method's return tuple array.
// abi.JSON builds its own anonymous Go struct type for a tuple component at
// parse time (there is no generated binding here to bind it to), so the
// decoded slice's element type is never a struct declared here; fields are
// read by name via reflection instead of a type assertion.
func unpackMulticallResults(raw []byte) ([]Result, error) {
	values, err := ParsedABI.Methods["multicall"].Outputs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("multicall: unpack results: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("multicall: unexpected output arity %d: %w", len(values), domainerr.ErrCorruptedMulticall)
	}

	rv := reflect.ValueOf(values[0])
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("multicall: unexpected output type %T: %w", values[0], domainerr.ErrCorruptedMulticall)
	}

	out := make([]Result, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i)
		usedGas, _ := item.FieldByName("UsedGas").Interface().(*big.Int)
		returnData, _ := item.FieldByName("ReturnData").Interface().([]byte)
		out[i] = Result{
			Success:    item.FieldByName("Success").Bool(),
			UsedGas:    usedGas,
			ReturnData: returnData,
		}
	}
	return out, nil
}
