// Package multicall drives the per-chain multicall/multitransfer
// contract: it aggregates subscription calls or withdraw
// transfers into one signed transaction, submits it via the external
// threshold-ECDSA signer, waits for its receipt, and re-parses the
// structured per-call results via eth_call.
package multicall

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractABIJSON is the deployed multicall contract's interface.
const ContractABIJSON = `[
	{
		"name": "multicall",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "calls", "type": "tuple[]", "components": [
				{"name": "target", "type": "address"},
				{"name": "callData", "type": "bytes"},
				{"name": "gasLimit", "type": "uint256"}
			]}
		],
		"outputs": [
			{"name": "results", "type": "tuple[]", "components": [
				{"name": "success", "type": "bool"},
				{"name": "usedGas", "type": "uint256"},
				{"name": "returnData", "type": "bytes"}
			]}
		]
	},
	{
		"name": "multitransfer",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "transfers", "type": "tuple[]", "components": [
				{"name": "target", "type": "address"},
				{"name": "value", "type": "uint256"}
			]}
		],
		"outputs": []
	}
]`

// ParsedABI is the parsed form of ContractABIJSON, computed once.
var ParsedABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABIJSON))
	if err != nil {
		panic("multicall: embedded ABI failed to parse: " + err.Error())
	}
	ParsedABI = parsed
}

// rawCallTuple/rawTransferTuple mirror the contract's tuple input layout
// field-for-field so abi.Pack can marshal them through reflection without a
// generated binding (decoding the result side uses reflection directly on
// abi's own dynamically-built tuple type instead; see unpackMulticallResults).
type rawCallTuple struct {
	Target   [20]byte
	CallData []byte
	GasLimit *big.Int
}

type rawTransferTuple struct {
	Target [20]byte
	Value  *big.Int
}
