// Command publisherctl is the administrative CLI over publisherd's HTTP
// surface: one subcommand per controller-gated endpoint
// (add_chain, remove_chain, update_chain_rpc, ...), each a thin adapter that
// signs nothing itself: the operator supplies an already-produced SIWE
// message/signature pair, matching the daemon's own "every mutation carries
// its own signature" design (internal/api's authenticate-then-mutate shape).
// A persistent --server flag is threaded through every leaf command via a
// shared client, rather than one flat flag set per command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var serverAddr string

	root := &cobra.Command{
		Use:   "publisherctl",
		Short: "Administer a running publisherd instance over its HTTP surface",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8080", "base URL of the publisherd admin HTTP surface")

	newClientFn := func() *client { return newClient(serverAddr) }

	root.AddCommand(
		chainCommands(newClientFn)...,
	)
	root.AddCommand(
		configCommands(newClientFn)...,
	)
	root.AddCommand(
		jobCommands(newClientFn)...,
	)
	root.AddCommand(
		balanceCommands(newClientFn)...,
	)
	root.AddCommand(
		whitelistCommands(newClientFn)...,
	)
	return root
}

// siweFlags attaches the (message, signature) pair every controller-gated
// mutation requires.
func siweFlags(cmd *cobra.Command, message, signature *string) {
	cmd.Flags().StringVar(message, "message", "", "SIWE message text to authenticate as a controller")
	cmd.Flags().StringVar(signature, "signature", "", "hex-encoded signature over --message")
	cmd.MarkFlagRequired("message")
	cmd.MarkFlagRequired("signature")
}
