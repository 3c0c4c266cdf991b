package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/eigerco/katedas/internal/config"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/store"
	"github.com/eigerco/katedas/pkg/db/pebble"
	"github.com/eigerco/katedas/pkg/log"
)

const (
	configFlag    = "config"
	logLevelFlag  = "log.level"
	logTypeFlag   = "log.type"
	storePathFlag = "store.path"
	chainHashFlag = "network.chain"
)

// configFlags are shared by every command and override the config file.
func configFlags() *flag.FlagSet {
	flags := &flag.FlagSet{}
	flags.String(configFlag, "", "Path to a TOML config file")
	flags.String(logLevelFlag, "", "Log level (debug, info, warn, error)")
	flags.String(logTypeFlag, "", "Log output (console, json)")
	flags.String(storePathFlag, "", "Directory of the block store")
	flags.String(chainHashFlag, "", "8 hex character chain identifier")
	return flags
}

// loadConfig reads the config file named by the flags, applies flag
// overrides, validates the result and initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString(configFlag); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("cmd: while parsing '%s': %w", configFlag, err)
		}
		cfg = loaded
	}

	overrides := map[string]*string{
		logLevelFlag:  &cfg.Log.Level,
		logTypeFlag:   &cfg.Log.Type,
		storePathFlag: &cfg.Store.Path,
		chainHashFlag: &cfg.Network.ChainHash,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			v, err := cmd.Flags().GetString(name)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Init(cfg.LogOptions())
	return cfg, nil
}

// loadParams reads the parameters file or derives development parameters.
func loadParams(cfg config.KZGConfig) (*kzg.Params, error) {
	if cfg.ParamsPath == "" {
		log.KZG.Warn().Uint64("size", cfg.DevSize).Msg("using development parameters with a known secret")
		return kzg.NewDevParams(cfg.DevSize, new(big.Int).SetUint64(cfg.DevSecret))
	}
	f, err := os.Open(cfg.ParamsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	params := &kzg.Params{}
	if _, err := params.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read params %s: %w", cfg.ParamsPath, err)
	}
	return params, nil
}

func openChain(path string) (*store.Chain, error) {
	kv, err := pebble.NewKVStore(pebble.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return store.NewChain(kv), nil
}
