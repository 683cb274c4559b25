// Migration logic for rows written by an older snapshot schema version.
// Two fixups run on load: chains missing a
// multicall_contract are back-filled with the well-known
// default, and subscription rows with no stored frequency are given
// frequency=3600, raised to the timer frequency when that is larger.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/subscription"
)

// legacyDefaultFrequencySeconds is substituted for subscriptions persisted
// by a schema version that predates the frequency column.
const legacyDefaultFrequencySeconds = 3600

func loadChains(ctx context.Context, db *sql.DB, version int) ([]chainreg.Chain, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT chain_id, rpc, min_balance, block_gas_limit, fee, symbol, multicall_contract FROM chains`)
	if err != nil {
		return nil, fmt.Errorf("state: load chains: %w", err)
	}
	defer rows.Close()

	var out []chainreg.Chain
	for rows.Next() {
		var (
			chainID, rpc, minBalance, gasLimit, symbol string
			fee, multicall                             sql.NullString
		)
		if err := rows.Scan(&chainID, &rpc, &minBalance, &gasLimit, &fee, &symbol, &multicall); err != nil {
			return nil, fmt.Errorf("state: scan chain: %w", err)
		}

		id, ok := new(big.Int).SetString(chainID, 10)
		if !ok {
			return nil, fmt.Errorf("state: chain id %q: %w", chainID, errInvalidSnapshotRow)
		}

		chain := chainreg.Chain{
			ChainID:       id,
			RPC:           rpc,
			MinBalance:    parseBig(minBalance),
			BlockGasLimit: parseBig(gasLimit),
			Symbol:        symbol,
		}
		if fee.Valid {
			chain.Fee = parseBig(fee.String)
		}

		// Migration: pre-multicall chains have no multicall_contract row.
		if multicall.Valid && multicall.String != "" {
			chain.MulticallAddress = common.HexToAddress(multicall.String)
		} else {
			chain.MulticallAddress = common.HexToAddress(chainreg.DefaultMulticallContract)
		}

		out = append(out, chain)
	}
	return out, rows.Err()
}

func loadSubscriptions(ctx context.Context, db *sql.DB, version int, timerFrequency *big.Int) (map[string][]subscription.Subscription, uint64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, chain_id, label, owner, contract_addr, frequency, method_name, method_abi, method_gas_limit,
			method_kind, method_pair_id, method_param_type, is_active, last_update
		 FROM subscriptions`)
	if err != nil {
		return nil, 0, fmt.Errorf("state: load subscriptions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]subscription.Subscription)
	var maxID uint64
	for rows.Next() {
		var (
			id                                            uint64
			chainID, label, owner, contractAddr           string
			methodName, methodABI                         string
			methodGasLimit, pairID, paramType, lastUpdate string
			frequency                                     sql.NullString
			methodKind, isActive                          int
		)
		if err := rows.Scan(&id, &chainID, &label, &owner, &contractAddr, &frequency, &methodName, &methodABI,
			&methodGasLimit, &methodKind, &pairID, &paramType, &isActive, &lastUpdate); err != nil {
			return nil, 0, fmt.Errorf("state: scan subscription: %w", err)
		}

		freq := legacyFrequency(frequency, timerFrequency)

		sub := subscription.Subscription{
			ID:           id,
			Label:        label,
			Owner:        owner,
			ContractAddr: contractAddr,
			Frequency:    freq,
			Method: subscription.Method{
				Name:     methodName,
				ABI:      methodABI,
				GasLimit: parseBig(methodGasLimit),
				MethodType: subscription.MethodType{
					Kind:      subscription.MethodKind(methodKind),
					PairID:    pairID,
					ParamType: paramType,
				},
			},
			Status: subscription.Status{
				IsActive:   isActive != 0,
				LastUpdate: parseBig(lastUpdate),
			},
		}

		out[chainID] = append(out[chainID], sub)
		if id > maxID {
			maxID = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	nextID := maxID
	if err := db.QueryRowContext(ctx, `SELECT next_id FROM subscription_counter WHERE id = 1`).Scan(&nextID); err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("state: load subscription counter: %w", err)
	}
	if nextID < maxID {
		nextID = maxID
	}

	return out, nextID, nil
}

// legacyFrequency is the fallback for a subscription row written before
// the frequency column existed (or with it left NULL): a 3600s default,
// or the timer frequency if that is larger, rather than a load failure.
func legacyFrequency(stored sql.NullString, timerFrequency *big.Int) *big.Int {
	if stored.Valid && stored.String != "" {
		return parseBig(stored.String)
	}
	freq := big.NewInt(legacyDefaultFrequencySeconds)
	if timerFrequency != nil && freq.Cmp(timerFrequency) < 0 {
		return new(big.Int).Set(timerFrequency)
	}
	return freq
}

var errInvalidSnapshotRow = fmt.Errorf("invalid snapshot row")
