package config

import "time"

// DefaultConfig returns the configuration used when no file overrides a field.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			Dir:   "",
			File:  "client.log",
		},
		API: APIConfig{
			BaseURL:      "http://127.0.0.1:8080/api",
			Timeout:      30 * time.Second,
			RefreshSkew:  30 * time.Second,
			LoginPath:    "/login",
			RefreshPath:  "/auth/refresh",
			IdentityPath: "/user/info",
			LogoutPath:   "/auth/logout",
			SignInPath:   "/auth/login",
			UserAgent:    "eduverse-client-go",
		},
		Wallet: WalletConfig{
			AgentURL:      "",
			ChainID:       11155111,
			ConfirmPrompt: "Connect your wallet to continue?",
		},
		Ledger: LedgerConfig{
			RPCURL:       "http://127.0.0.1:8545",
			PollInterval: 2 * time.Second,
		},
		Mint: MintConfig{
			Store: MintStoreConfig{
				Type: "sqlite",
				SQLite: MintSQLiteStore{
					DSN: "data/mint.db",
				},
			},
		},
	}
}
