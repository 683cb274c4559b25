package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// balanceCommands covers the balance-affecting admin endpoints:
// clear_balance, withdraw_fee, withdraw_all_balance.
func balanceCommands(newClient func() *client) []*cobra.Command {
	return []*cobra.Command{
		clearBalanceCommand(newClient),
		withdrawFeeCommand(newClient),
		withdrawAllBalanceCommand(newClient),
	}
}

func clearBalanceCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID, address string
	cmd := &cobra.Command{
		Use:   "clear-balance",
		Short: "Zero a wallet's balance and forget its recorded deposit nonces",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/admin/balance/%s/%s/clear", chainID, address)
			return newClient().post(cmd.Context(), path,
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&address, "address", "", "wallet address")
	cmd.MarkFlagRequired("chain-id")
	cmd.MarkFlagRequired("address")
	return cmd
}

func withdrawFeeCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID, receiver string
	cmd := &cobra.Command{
		Use:   "withdraw-fee",
		Short: "Queue a withdrawal of the PMA's accumulated fee balance on a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/admin/balance/%s/withdraw-fee", chainID)
			return newClient().post(cmd.Context(), path,
				map[string]string{"message": message, "signature": signature, "receiver": receiver}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&receiver, "receiver", "", "address to receive the withdrawn fee")
	cmd.MarkFlagRequired("chain-id")
	cmd.MarkFlagRequired("receiver")
	return cmd
}

func withdrawAllBalanceCommand(newClient func() *client) *cobra.Command {
	var message, signature, chainID, address, receiver string
	cmd := &cobra.Command{
		Use:   "withdraw-all-balance",
		Short: "Queue a withdrawal of a wallet's entire balance on a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/admin/balance/%s/%s/withdraw-all", chainID, address)
			return newClient().post(cmd.Context(), path,
				map[string]string{"message": message, "signature": signature, "receiver": receiver}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id (decimal)")
	cmd.Flags().StringVar(&address, "address", "", "wallet address to drain")
	cmd.Flags().StringVar(&receiver, "receiver", "", "address to receive the withdrawn balance")
	cmd.MarkFlagRequired("chain-id")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("receiver")
	return cmd
}
