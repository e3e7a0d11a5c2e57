package config

import (
	"time"
)

type Config struct {
	Log           LogConfig           `yaml:"log"`
	API           APIConfig           `yaml:"api"`
	Wallet        WalletConfig        `yaml:"wallet"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Mint          MintConfig          `yaml:"mint"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type LogConfig struct {
	Level   string `yaml:"log_level"`
	Dir     string `yaml:"log_dir"`
	File    string `yaml:"log_file"`
	NoColor bool   `yaml:"no_color"`
}

// APIConfig describes the backend the client talks to.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	RefreshSkew  time.Duration `yaml:"refresh_skew"`
	LoginPath    string        `yaml:"login_path"`
	RefreshPath  string        `yaml:"refresh_path"`
	IdentityPath string        `yaml:"identity_path"`
	LogoutPath   string        `yaml:"logout_path"`
	SignInPath   string        `yaml:"sign_in_path"`
	UserAgent    string        `yaml:"user_agent"`
}

type WalletConfig struct {
	AgentURL      string `yaml:"agent_url"`
	ChainID       int64  `yaml:"chain_id"`
	ConfirmPrompt string `yaml:"confirm_prompt"`
}

type LedgerConfig struct {
	RPCURL        string        `yaml:"rpc_url"`
	NFTContract   string        `yaml:"nft_contract"`
	TokenContract string        `yaml:"token_contract"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FromBlock     uint64        `yaml:"from_block"`
}

// MintConfig selects where saga records are persisted.
type MintConfig struct {
	Store MintStoreConfig `yaml:"store"`
}

type MintStoreConfig struct {
	Type   string          `yaml:"type"`
	TTL    time.Duration   `yaml:"ttl"`
	Redis  MintRedisStore  `yaml:"redis,omitempty"`
	SQLite MintSQLiteStore `yaml:"sqlite,omitempty"`
}

type MintRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type MintSQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}
