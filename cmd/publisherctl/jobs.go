package main

import "github.com/spf13/cobra"

// jobCommands covers the out-of-band job triggers and the
// timer kill switch: execute_publisher_job, execute_withdraw_job, stop_timer.
func jobCommands(newClient func() *client) []*cobra.Command {
	return []*cobra.Command{
		executePublisherJobCommand(newClient),
		executeWithdrawJobCommand(newClient),
		stopTimerCommand(newClient),
	}
}

func executePublisherJobCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	cmd := &cobra.Command{
		Use:   "execute-publisher-job",
		Short: "Force an immediate publisher tick, out of band from the timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), "/v1/admin/jobs/publisher",
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	return cmd
}

func executeWithdrawJobCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	cmd := &cobra.Command{
		Use:   "execute-withdraw-job",
		Short: "Force an immediate withdraw-queue flush across all chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), "/v1/admin/jobs/withdraw",
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	return cmd
}

func stopTimerCommand(newClient func() *client) *cobra.Command {
	var message, signature string
	cmd := &cobra.Command{
		Use:   "stop-timer",
		Short: "Permanently halt future scheduler ticks (irreversible without a restart)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), "/v1/admin/timer/stop",
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	return cmd
}
