package multicall

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BaseGas is the fixed transaction overhead the driver reserves on top
// of each call's own gas limit.
const BaseGas = 27_000

// MulticallOverhead is added on top of the calls' summed gas limits.
const MulticallOverhead = 10_000

// GasPerTransfer is the marginal gas cost of one transfer inside a
// multitransfer batch.
const GasPerTransfer = 7_900

// MultiTransferOverhead pads a multitransfer's gas above the per-transfer
// estimate, the same way MulticallOverhead pads a multicall's.
const MultiTransferOverhead = 10_000

// ReceiptTimeout bounds how long the driver waits for a submitted
// transaction's receipt, in seconds.
const ReceiptTimeout = 5 * 60

// Call is one aggregated sub-call inside a multicall transaction.
type Call struct {
	Target   common.Address
	CallData []byte
	GasLimit *big.Int
}

// Transfer is one aggregated payout inside a multitransfer transaction.
type Transfer struct {
	Target common.Address
	Value  *big.Int
}

// Result is one sub-call's outcome, decoded from the multicall contract's
// return tuple (or re-parsed via eth_call after the fact).
type Result struct {
	Success    bool
	UsedGas    *big.Int
	ReturnData []byte
}

// ChainClient is the subset of ethclient.Client the driver needs: nonce and
// gas-price discovery, broadcast, receipt polling, and the eth_call
// re-parse step.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}
