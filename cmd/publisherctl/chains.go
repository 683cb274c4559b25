package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// chainCommands implements add_chain, remove_chain, update_chain_rpc, and
// update_chain_min_balance, each a direct
// adapter over internal/chainreg.AddRequest/patch fields.
func chainCommands(newClient func() *client) []*cobra.Command {
	return []*cobra.Command{
		addChainCommand(newClient),
		removeChainCommand(newClient),
		updateChainRPCCommand(newClient),
		updateChainMinBalanceCommand(newClient),
	}
}

func addChainCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	var chainID, rpc, minBalance, blockGasLimit, fee, symbol, multicallAddr string

	cmd := &cobra.Command{
		Use:   "add-chain",
		Short: "Register a new chain in the chain registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"message":           message,
				"signature":         signature,
				"chain_id":          chainID,
				"rpc":               rpc,
				"min_balance":       minBalance,
				"block_gas_limit":   blockGasLimit,
				"fee":               fee,
				"symbol":            symbol,
				"multicall_address": multicallAddr,
			}
			return newClient().post(cmd.Context(), "/v1/admin/chains", body, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&rpc, "rpc", "", "RPC endpoint URL")
	cmd.Flags().StringVar(&minBalance, "min-balance", "", "minimum subscriber balance (wei)")
	cmd.Flags().StringVar(&blockGasLimit, "block-gas-limit", "", "block gas limit")
	cmd.Flags().StringVar(&fee, "fee", "", "fixed native-unit fee (omit to use the USD/feed bridge)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "native asset symbol, for the USD fee bridge")
	cmd.Flags().StringVar(&multicallAddr, "multicall-address", "", "deployed multicall contract address")
	for _, name := range []string{"chain-id", "rpc", "min-balance", "block-gas-limit"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func removeChainCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID string
	cmd := &cobra.Command{
		Use:   "remove-chain",
		Short: "Remove a chain, cascading the purge of its balances and withdraw queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().delete(cmd.Context(), fmt.Sprintf("/v1/admin/chains/%s", chainID),
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.MarkFlagRequired("chain-id")
	return cmd
}

func updateChainRPCCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID, rpc string
	cmd := &cobra.Command{
		Use:   "update-chain-rpc",
		Short: "Update a chain's RPC endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().patch(cmd.Context(), fmt.Sprintf("/v1/admin/chains/%s/rpc", chainID),
				map[string]string{"message": message, "signature": signature, "rpc": rpc}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&rpc, "rpc", "", "new RPC endpoint URL")
	cmd.MarkFlagRequired("chain-id")
	cmd.MarkFlagRequired("rpc")
	return cmd
}

func updateChainMinBalanceCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID, minBalance string
	cmd := &cobra.Command{
		Use:   "update-chain-min-balance",
		Short: "Update a chain's minimum subscriber balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().patch(cmd.Context(), fmt.Sprintf("/v1/admin/chains/%s/min-balance", chainID),
				map[string]string{"message": message, "signature": signature, "min_balance": minBalance}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&minBalance, "min-balance", "", "new minimum balance (wei)")
	cmd.MarkFlagRequired("chain-id")
	cmd.MarkFlagRequired("min-balance")
	return cmd
}
