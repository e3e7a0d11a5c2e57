package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"eduverse-client-go/internal/platform/errors"
)

// EnvPrefix namespaces environment overrides, e.g. EDUVERSE_API_BASE_URL.
const EnvPrefix = "EDUVERSE_"

// Loader reads configuration from defaults, an optional YAML file and the environment.
type Loader struct {
	useDotEnv bool
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load merges path (if non-empty and present) over defaults, applies env overrides and validates.
func (l *Loader) Load(path string) (*Result, error) {
	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	loadedFrom := ""
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, errors.Wrap(errors.KindConfig, "config.parse", "invalid yaml in "+path, err)
			}
			loadedFrom = path
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrap(errors.KindConfig, "config.read", "cannot read "+path, err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: loadedFrom}, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_DIR":             &cfg.Log.Dir,
		"API_BASE_URL":        &cfg.API.BaseURL,
		"WALLET_AGENT_URL":    &cfg.Wallet.AgentURL,
		"LEDGER_RPC_URL":      &cfg.Ledger.RPCURL,
		"LEDGER_NFT":          &cfg.Ledger.NFTContract,
		"LEDGER_TOKEN":        &cfg.Ledger.TokenContract,
		"MINT_STORE":          &cfg.Mint.Store.Type,
		"MINT_REDIS_ADDR":     &cfg.Mint.Store.Redis.Addr,
		"MINT_REDIS_PASSWORD": &cfg.Mint.Store.Redis.Password,
		"MINT_SQLITE_DSN":     &cfg.Mint.Store.SQLite.DSN,
	}
	for key, dst := range strs {
		if v, ok := l.lookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"API_TIMEOUT":          &cfg.API.Timeout,
		"API_REFRESH_SKEW":     &cfg.API.RefreshSkew,
		"LEDGER_POLL_INTERVAL": &cfg.Ledger.PollInterval,
	}
	for key, dst := range durations {
		v, ok := l.lookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", EnvPrefix+key+" is not a duration", err)
		}
		*dst = d
	}

	if v, ok := l.lookupEnv(EnvPrefix + "WALLET_CHAIN_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", EnvPrefix+"WALLET_CHAIN_ID is not an integer", err)
		}
		cfg.Wallet.ChainID = id
	}
	if v, ok := l.lookupEnv(EnvPrefix + "OBSERVABILITY"); ok {
		cfg.Observability.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return errors.New(errors.KindConfig, "config.validate", "api.base_url is required")
	}
	if cfg.API.Timeout < 0 || cfg.API.RefreshSkew < 0 {
		return errors.New(errors.KindConfig, "config.validate", "api durations must not be negative")
	}
	if cfg.Ledger.PollInterval <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "ledger.poll_interval must be positive")
	}
	for name, addr := range map[string]string{
		"ledger.nft_contract":   cfg.Ledger.NFTContract,
		"ledger.token_contract": cfg.Ledger.TokenContract,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("%s is not a hex address: %q", name, addr))
		}
	}
	switch cfg.Mint.Store.Type {
	case "memory", "sqlite":
	case "redis":
		if cfg.Mint.Store.Redis.Addr == "" {
			return errors.New(errors.KindConfig, "config.validate", "mint.store.redis.addr is required for redis store")
		}
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unsupported mint store type %q", cfg.Mint.Store.Type))
	}
	return nil
}
