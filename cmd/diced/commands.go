package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"DiceVault/client"
	"DiceVault/internal/authority"
	"DiceVault/internal/config"
	"DiceVault/internal/ident"
	"DiceVault/internal/logger"
	"DiceVault/internal/snapshot"
)

// loadConfig reads the config and initializes the global logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return config.Config{}, fmt.Errorf("init logger:\n%w", err)
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	node, err := NewNode(cmd.Context(), &cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	logger.Info("starting dice node",
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"journal", cfg.Journal,
		"faucet", cfg.Faucet,
	)

	return node.Run()
}

func runAuthority(cmd *cobra.Command, args []string) error {
	pool, err := ident.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse pool:\n%w", err)
	}

	auth, nonce, err := authority.Find(pool)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "authority %s\nnonce     %d\n", auth, nonce)

	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("refusing to overwrite %s", args[0])
	}

	w := client.NewWallet()
	if err := w.Save(args[0]); err != nil {
		return fmt.Errorf("save wallet:\n%w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pubkey %s\n", w.Pubkey())

	return nil
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openStorage(cfg.DataPath)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot file:\n%w", err)
	}
	defer f.Close()

	start := time.Now()

	n, err := snapshot.Export(db, f, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("export snapshot:\n%w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync snapshot file:\n%w", err)
	}

	logger.Info("snapshot exported", "file", args[0], "bytes", n, logger.Timed(start))

	return nil
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open snapshot file:\n%w", err)
	}
	defer f.Close()

	db, err := openStorage(cfg.DataPath)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()

	snap, err := snapshot.Import(db, f)
	if err != nil {
		return fmt.Errorf("import snapshot:\n%w", err)
	}

	logger.Info("snapshot imported",
		"file", args[0],
		"entries", snap.EntriesLength(),
		"taken_at", snap.TakenAt(),
		logger.Timed(start),
	)

	return nil
}
