package main

import "github.com/spf13/cobra"

// configCommands covers the global-config mutation endpoints:
// update_tx_fee, update_subs_limit_wallet,
// update_subs_limit_total, update_timer_frequency.
func configCommands(newClient func() *client) []*cobra.Command {
	return []*cobra.Command{
		updateTxFeeCommand(newClient),
		updateSubsLimitWalletCommand(newClient),
		updateSubsLimitTotalCommand(newClient),
		updateTimerFrequencyCommand(newClient),
	}
}

func updateTxFeeCommand(newClient func() *client) *cobra.Command {
	var message, signature, fee string
	cmd := &cobra.Command{
		Use:   "update-tx-fee",
		Short: "Update the platform's USD-denominated per-call fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().patch(cmd.Context(), "/v1/admin/tx-fee",
				map[string]string{"message": message, "signature": signature, "fee": fee}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&fee, "fee", "", "new fee, in 6-decimal USD cents")
	cmd.MarkFlagRequired("fee")
	return cmd
}

func updateSubsLimitWalletCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	var limit int
	cmd := &cobra.Command{
		Use:   "update-subs-limit-wallet",
		Short: "Update the maximum active subscriptions allowed per owner wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"message": message, "signature": signature, "limit": limit}
			return newClient().patch(cmd.Context(), "/v1/admin/subs-limit/wallet", body, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().IntVar(&limit, "limit", 0, "new per-wallet subscription limit")
	cmd.MarkFlagRequired("limit")
	return cmd
}

func updateSubsLimitTotalCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	var limit int
	cmd := &cobra.Command{
		Use:   "update-subs-limit-total",
		Short: "Update the global maximum active subscriptions allowed",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"message": message, "signature": signature, "limit": limit}
			return newClient().patch(cmd.Context(), "/v1/admin/subs-limit/total", body, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().IntVar(&limit, "limit", 0, "new global subscription limit")
	cmd.MarkFlagRequired("limit")
	return cmd
}

func updateTimerFrequencyCommand(newClient func() *client) *cobra.Command {
	var message, signature, seconds string
	cmd := &cobra.Command{
		Use:   "update-timer-frequency",
		Short: "Update the global scheduler tick interval, in seconds",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"message": message, "signature": signature, "seconds": seconds}
			return newClient().patch(cmd.Context(), "/v1/admin/timer-frequency", body, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&seconds, "seconds", "", "new tick interval, in seconds")
	cmd.MarkFlagRequired("seconds")
	return cmd
}
