package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd assembles the diced command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "diced",
		Short:        "Custodial dice settlement node",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("data", "./data", "data directory path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP settlement node",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	serveCmd.Flags().String("http", ":8080", "HTTP API address")
	serveCmd.Flags().String("journal", "sqlite", "settlement journal (sqlite, postgres, none)")
	serveCmd.Flags().String("journal-dsn", "", "sqlite file or postgres DSN (default <data>/journal.db)")
	serveCmd.Flags().Bool("faucet", false, "enable POST /faucet")

	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "authority <pool-hex>",
		Short: "Print the vault authority and nonce for a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuthority,
	})

	root.AddCommand(&cobra.Command{
		Use:   "keygen <file>",
		Short: "Generate a wallet key file",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeygen,
	})

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the node's store",
	}

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Write a compressed snapshot of the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotExport,
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Verify and load a snapshot into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotImport,
	})

	root.AddCommand(snapshotCmd)

	return root
}
