// Package config loads service configuration from a yaml file with CLI
// flag overrides for the common knobs.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath     = "config.yaml"
	defaultListenAddr     = ":8080"
	defaultQuoteAsset     = "ZUSD"
	defaultMinPrice       = "0.01"
	defaultMaxPairs       = 20
	defaultPollInterval   = 10 * time.Second
	defaultFetchTimeout   = 8 * time.Second
	defaultInitialBalance = "10000.00"
	defaultStorage        = "memory"
	defaultEquityWALDir   = "./wal/equity"
)

// Config is the resolved service configuration.
type Config struct {
	ListenAddr     string
	QuoteAsset     string
	MinPrice       decimal.Decimal
	MaxPairs       int
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	InitialBalance decimal.Decimal
	Storage        string
	PostgresDSN    string
	EquityWALDir   string
	TLSDomains     []string
	Setup          bool
}

// ConfigTmp mirrors the yaml layout; decimals are carried as strings.
type ConfigTmp struct {
	ListenAddr        string        `yaml:"listen_addr,omitempty"`
	QuoteAsset        string        `yaml:"quote_asset,omitempty"`
	MinPriceStr       string        `yaml:"min_price,omitempty"`
	MaxPairs          int           `yaml:"max_pairs,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout,omitempty"`
	InitialBalanceStr string        `yaml:"initial_balance,omitempty"`
	Storage           string        `yaml:"storage,omitempty"`
	PostgresDSN       string        `yaml:"postgres_dsn,omitempty"`
	EquityWALDir      string        `yaml:"equity_wal_dir,omitempty"`
	TLSDomains        []string      `yaml:"tls_domains,omitempty"`
}

// Flags holds the parsed CLI flags. Parsing registers them on the
// global flag set, so ParseFlags must run exactly once per process;
// the resulting value can feed Get any number of times.
type Flags struct {
	ConfigPath   string
	ListenAddr   string
	PollInterval time.Duration
	Storage      string
	Setup        bool
}

// ParseFlags registers and parses the CLI flags.
func ParseFlags() Flags {
	configPath := flag.String("config", "", "path to yaml config")
	listenAddr := flag.String("listen", "", "listen address, example: :8080")
	pollInterval := flag.Duration("pollinterval", 0, "price poll interval")
	storageKind := flag.String("storage", "", "storage backend: memory or postgres")
	setup := flag.Bool("setup", false, "run the interactive configuration wizard")
	flag.Parse()

	return Flags{
		ConfigPath:   *configPath,
		ListenAddr:   *listenAddr,
		PollInterval: *pollInterval,
		Storage:      *storageKind,
		Setup:        *setup,
	}
}

// Get resolves the configuration: defaults, then the yaml file named by
// --config (or ./config.yaml when it exists), then flag overrides. The
// setup wizard writes ./config.yaml, so calling Get again after the
// wizard picks up the fresh file.
func Get(flags Flags) (Config, error) {
	cfg := defaults()
	cfg.Setup = flags.Setup

	path := flags.ConfigPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		loaded, err := fromYaml(path)
		if err != nil {
			return Config{}, err
		}
		loaded.Setup = cfg.Setup
		cfg = loaded
	}

	if flags.ListenAddr != "" {
		cfg.ListenAddr = flags.ListenAddr
	}
	if flags.PollInterval > 0 {
		cfg.PollInterval = flags.PollInterval
	}
	if flags.Storage != "" {
		cfg.Storage = flags.Storage
	}

	return cfg, cfg.validate()
}

func defaults() Config {
	return Config{
		ListenAddr:     defaultListenAddr,
		QuoteAsset:     defaultQuoteAsset,
		MinPrice:       decimal.RequireFromString(defaultMinPrice),
		MaxPairs:       defaultMaxPairs,
		PollInterval:   defaultPollInterval,
		FetchTimeout:   defaultFetchTimeout,
		InitialBalance: decimal.RequireFromString(defaultInitialBalance),
		Storage:        defaultStorage,
		EquityWALDir:   defaultEquityWALDir,
	}
}

func fromYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}

	cfg := defaults()
	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if tmp.QuoteAsset != "" {
		cfg.QuoteAsset = tmp.QuoteAsset
	}
	if tmp.MinPriceStr != "" {
		cfg.MinPrice, err = decimal.NewFromString(tmp.MinPriceStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'min_price' param in yaml config: %w", err)
		}
	}
	if tmp.MaxPairs > 0 {
		cfg.MaxPairs = tmp.MaxPairs
	}
	if tmp.PollInterval > 0 {
		cfg.PollInterval = tmp.PollInterval
	}
	if tmp.FetchTimeout > 0 {
		cfg.FetchTimeout = tmp.FetchTimeout
	}
	if tmp.InitialBalanceStr != "" {
		cfg.InitialBalance, err = decimal.NewFromString(tmp.InitialBalanceStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'initial_balance' param in yaml config: %w", err)
		}
	}
	if tmp.Storage != "" {
		cfg.Storage = tmp.Storage
	}
	cfg.PostgresDSN = tmp.PostgresDSN
	if tmp.EquityWALDir != "" {
		cfg.EquityWALDir = tmp.EquityWALDir
	}
	cfg.TLSDomains = tmp.TLSDomains

	return cfg, nil
}

func (c Config) validate() error {
	if !c.MinPrice.IsPositive() {
		return fmt.Errorf("min_price must be positive, got %s", c.MinPrice.String())
	}
	if c.MaxPairs <= 0 {
		return fmt.Errorf("max_pairs must be positive, got %d", c.MaxPairs)
	}
	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("initial_balance must be positive, got %s", c.InitialBalance.String())
	}
	switch c.Storage {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires 'postgres_dsn'")
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be memory or postgres", c.Storage)
	}
	return nil
}
