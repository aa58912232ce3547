package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Journal backends accepted by the "journal" key.
const (
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
	JournalNone     = "none"
)

var ErrInvalid = errors.New("invalid config")

// Config holds the node configuration loaded from flags, env, or config file.
type Config struct {
	// DataPath is the directory for the Pebble store.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// Journal selects the receipt backend: sqlite, postgres or none.
	Journal string

	// JournalDSN is the sqlite file or postgres connection string.
	// For sqlite it defaults to <data>/journal.db.
	JournalDSN string

	// Faucet enables POST /faucet.
	Faucet bool

	// LogLevel is a zap level name.
	LogLevel string
}

// Load merges config file, DICE_* environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DICE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data", "./data")
	v.SetDefault("http", ":8080")
	v.SetDefault("journal", JournalSQLite)
	v.SetDefault("journal-dsn", "")
	v.SetDefault("faucet", false)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags:\n%w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config:\n%w", err)
		}
	} else {
		v.SetConfigName("diced")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config:\n%w", err)
			}
		}
	}

	cfg := Config{
		DataPath:    v.GetString("data"),
		HTTPAddress: v.GetString("http"),
		Journal:     strings.ToLower(v.GetString("journal")),
		JournalDSN:  v.GetString("journal-dsn"),
		Faucet:      v.GetBool("faucet"),
		LogLevel:    v.GetString("log-level"),
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// normalize validates the journal choice and fills the sqlite default path.
func (c *Config) normalize() error {
	if c.DataPath == "" {
		return fmt.Errorf("%w: data path is empty", ErrInvalid)
	}

	switch c.Journal {
	case JournalSQLite:
		if c.JournalDSN == "" {
			c.JournalDSN = filepath.Join(c.DataPath, "journal.db")
		}
	case JournalPostgres:
		if c.JournalDSN == "" {
			return fmt.Errorf("%w: journal-dsn is required for postgres", ErrInvalid)
		}
	case JournalNone:
	default:
		return fmt.Errorf("%w: unknown journal %q", ErrInvalid, c.Journal)
	}

	return nil
}
