package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// whitelistCommands covers the whitelist mutations: the admit/revoke
// pair plus the separate blacklist/unblacklist toggle
// (internal/whitelist.List).
func whitelistCommands(newClient func() *client) []*cobra.Command {
	return []*cobra.Command{
		whitelistAddCommand(newClient),
		whitelistRemoveCommand(newClient),
		whitelistBlacklistCommand(newClient),
		whitelistUnblacklistCommand(newClient),
	}
}

func whitelistAddCommand(newClient func() *client) *cobra.Command {
	var message, signature, address string
	cmd := &cobra.Command{
		Use:   "whitelist-add",
		Short: "Admit an address to the whitelist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), fmt.Sprintf("/v1/admin/whitelist/%s", address),
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&address, "address", "", "address to whitelist")
	cmd.MarkFlagRequired("address")
	return cmd
}

func whitelistRemoveCommand(newClient func() *client) *cobra.Command {
	var message, signature, address string
	cmd := &cobra.Command{
		Use:   "whitelist-remove",
		Short: "Revoke an address's whitelist membership, discarding its subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().delete(cmd.Context(), fmt.Sprintf("/v1/admin/whitelist/%s", address),
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&address, "address", "", "address to remove")
	cmd.MarkFlagRequired("address")
	return cmd
}

func whitelistBlacklistCommand(newClient func() *client) *cobra.Command {
	var message, signature, address string
	cmd := &cobra.Command{
		Use:   "whitelist-blacklist",
		Short: "Stop every subscription owned by an address without discarding them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), fmt.Sprintf("/v1/admin/whitelist/%s/blacklist", address),
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&address, "address", "", "address to blacklist")
	cmd.MarkFlagRequired("address")
	return cmd
}

func whitelistUnblacklistCommand(newClient func() *client) *cobra.Command {
	var message, signature, address string
	cmd := &cobra.Command{
		Use:   "whitelist-unblacklist",
		Short: "Clear an address's blacklist flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().post(cmd.Context(), fmt.Sprintf("/v1/admin/whitelist/%s/unblacklist", address),
				map[string]string{"message": message, "signature": signature}, nil)
		},
	}
	siweFlags(cmd, &message, &signature)
	cmd.Flags().StringVar(&address, "address", "", "address to unblacklist")
	cmd.MarkFlagRequired("address")
	return cmd
}
