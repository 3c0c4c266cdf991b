// Package config holds the node configuration. It is stored as TOML and
// every section has a default.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/pkg/log"
	"github.com/eigerco/katedas/pkg/network/peer"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Grid     GridConfig     `toml:"grid"`
	Sampling SamplingConfig `toml:"sampling"`
	Server   ServerConfig   `toml:"server"`
	Network  NetworkConfig  `toml:"network"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
	KZG      KZGConfig      `toml:"kzg"`
}

type GridConfig struct {
	MinWidth  int `toml:"min_width"`
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
	// RowFactor is how many times the rows are extended.
	RowFactor int `toml:"row_factor"`
}

type SamplingConfig struct {
	SampleCount   int           `toml:"sample_count"`
	PeerTimeout   time.Duration `toml:"peer_timeout"`
	FixedAttempts int           `toml:"fixed_attempts"`
	FixedDelay    time.Duration `toml:"fixed_delay"`
	MaxDelay      time.Duration `toml:"max_delay"`
	MaxAttempts   int           `toml:"max_attempts"`
	RetryInterval time.Duration `toml:"retry_interval"`
	Workers       int           `toml:"workers"`
}

type ServerConfig struct {
	CacheSize     int `toml:"cache_size"`
	GridCacheSize int `toml:"grid_cache_size"`
	MaxCells      int `toml:"max_cells"`
}

type NetworkConfig struct {
	ListenAddr string   `toml:"listen_addr"`
	Peers      []string `toml:"peers"`
	// ChainHash is the 8 hex character network identifier.
	ChainHash string `toml:"chain_hash"`
	Light     bool   `toml:"light"`
	// KeySeed is a hex encoded 32 byte seed of the node key. Empty means a
	// fresh key on every start.
	KeySeed      string        `toml:"key_seed"`
	CertValidity time.Duration `toml:"cert_validity"`
}

type StoreConfig struct {
	Path string `toml:"path"`
	// Retain is how many finalized blocks are kept, zero keeps all.
	Retain uint32 `toml:"retain"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Type  string `toml:"type"`
}

type KZGConfig struct {
	// ParamsPath points to parameters written by "katedas params". When
	// empty, development parameters are derived from DevSecret.
	ParamsPath string `toml:"params_path"`
	DevSecret  uint64 `toml:"dev_secret"`
	DevSize    uint64 `toml:"dev_size"`
}

func Default() *Config {
	return &Config{
		Grid: GridConfig{
			MinWidth:  4,
			MaxWidth:  256,
			MaxHeight: 256,
			RowFactor: 2,
		},
		Sampling: SamplingConfig{
			SampleCount:   8,
			PeerTimeout:   10 * time.Second,
			FixedAttempts: 3,
			FixedDelay:    2 * time.Second,
			MaxDelay:      time.Minute,
			MaxAttempts:   8,
			RetryInterval: 30 * time.Second,
			Workers:       4,
		},
		Server: ServerConfig{
			CacheSize:     1024,
			GridCacheSize: 16,
			MaxCells:      64,
		},
		Network: NetworkConfig{
			ListenAddr:   "0.0.0.0:30333",
			ChainHash:    "00000000",
			CertValidity: 30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path:   "katedas-data",
			Retain: 1024,
		},
		Log: LogConfig{
			Level: "info",
			Type:  "console",
		},
		KZG: KZGConfig{
			DevSecret: 0x5eed,
			DevSize:   256,
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := cfg.Decode(f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return cfg.Encode(f)
}

func (cfg *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(cfg)
}

func (cfg *Config) Decode(r io.Reader) error {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
	}
	return nil
}

func (cfg *Config) Validate() error {
	g := cfg.Grid
	if !kate.IsPowerOfTwo(g.MinWidth) || !kate.IsPowerOfTwo(g.MaxWidth) || g.MinWidth > g.MaxWidth {
		return fmt.Errorf("%w: grid widths %d..%d must be powers of two in order", ErrInvalidConfig, g.MinWidth, g.MaxWidth)
	}
	if !kate.IsPowerOfTwo(g.MaxHeight) {
		return fmt.Errorf("%w: grid max_height %d is not a power of two", ErrInvalidConfig, g.MaxHeight)
	}
	if !kate.IsPowerOfTwo(g.RowFactor) {
		return fmt.Errorf("%w: grid row_factor %d is not a power of two", ErrInvalidConfig, g.RowFactor)
	}

	s := cfg.Sampling
	if s.SampleCount <= 0 || s.MaxAttempts <= 0 || s.Workers <= 0 {
		return fmt.Errorf("%w: sampling counts must be positive", ErrInvalidConfig)
	}
	if s.FixedAttempts < 0 || s.FixedAttempts > s.MaxAttempts {
		return fmt.Errorf("%w: sampling fixed_attempts %d outside 0..%d", ErrInvalidConfig, s.FixedAttempts, s.MaxAttempts)
	}
	if s.PeerTimeout <= 0 || s.RetryInterval <= 0 || s.FixedDelay < 0 || s.MaxDelay < s.FixedDelay {
		return fmt.Errorf("%w: sampling durations out of range", ErrInvalidConfig)
	}

	if cfg.Server.CacheSize <= 0 || cfg.Server.GridCacheSize <= 0 || cfg.Server.MaxCells < 0 {
		return fmt.Errorf("%w: server cache sizes must be positive", ErrInvalidConfig)
	}

	if len(cfg.Network.ChainHash) != 8 {
		return fmt.Errorf("%w: chain_hash %q must be 8 hex characters", ErrInvalidConfig, cfg.Network.ChainHash)
	}
	if _, err := hex.DecodeString(cfg.Network.ChainHash); err != nil {
		return fmt.Errorf("%w: chain_hash: %v", ErrInvalidConfig, err)
	}
	if _, err := cfg.Network.Seed(); err != nil {
		return err
	}

	if _, err := log.ParseLogLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalidConfig, err)
	}
	if _, err := log.ParseLoggerType(cfg.Log.Type); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.KZG.ParamsPath == "" && cfg.KZG.DevSize < uint64(g.MaxWidth) {
		return fmt.Errorf("%w: kzg dev_size %d below grid max_width %d", ErrInvalidConfig, cfg.KZG.DevSize, g.MaxWidth)
	}
	return nil
}

// Seed decodes the node key seed. A missing seed is all zeroes.
func (n NetworkConfig) Seed() ([32]byte, error) {
	var seed [32]byte
	if n.KeySeed == "" {
		return seed, nil
	}
	b, err := hex.DecodeString(n.KeySeed)
	if err != nil || len(b) != len(seed) {
		return seed, fmt.Errorf("%w: key_seed must be 64 hex characters", ErrInvalidConfig)
	}
	copy(seed[:], b)
	return seed, nil
}

func (cfg *Config) BlockGrid() block.GridConfig {
	return block.GridConfig{
		MinWidth:  cfg.Grid.MinWidth,
		MaxWidth:  cfg.Grid.MaxWidth,
		MaxHeight: cfg.Grid.MaxHeight,
	}
}

func (cfg *Config) ProofServer() sampling.ServerConfig {
	return sampling.ServerConfig{
		Grid:          cfg.BlockGrid(),
		RowFactor:     cfg.Grid.RowFactor,
		CacheSize:     cfg.Server.CacheSize,
		GridCacheSize: cfg.Server.GridCacheSize,
		MaxCells:      cfg.Server.MaxCells,
	}
}

// Sampler builds the sampler config. nodeKey seeds the sample positions.
func (cfg *Config) Sampler(nodeKey []byte) sampling.Config {
	s := cfg.Sampling
	return sampling.Config{
		SampleCount:   s.SampleCount,
		RowFactor:     cfg.Grid.RowFactor,
		PeerTimeout:   s.PeerTimeout,
		FixedAttempts: s.FixedAttempts,
		FixedDelay:    s.FixedDelay,
		MaxDelay:      s.MaxDelay,
		MaxAttempts:   s.MaxAttempts,
		RetryInterval: s.RetryInterval,
		Workers:       s.Workers,
		NodeKey:       nodeKey,
	}
}

// Node builds the network node config. Validate must have passed.
func (cfg *Config) Node() peer.Config {
	seed, _ := cfg.Network.Seed()
	return peer.Config{
		ListenAddr:         cfg.Network.ListenAddr,
		ChainHash:          cfg.Network.ChainHash,
		Light:              cfg.Network.Light,
		KeySeed:            seed,
		CertValidity:       cfg.Network.CertValidity,
		AnnouncementBuffer: 64,
	}
}

func (cfg *Config) LogOptions() log.Options {
	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	tp, _ := log.ParseLoggerType(cfg.Log.Type)
	return log.Options{LogLevel: level, Type: tp}
}
