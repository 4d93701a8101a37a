package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// RPC settings
	RPCUrl            string
	WSUrl             string
	FetchRatePerSec   int
	HeartbeatInterval time.Duration

	// Jupiter aggregator
	JupiterURL    string
	JupiterAPIKey string

	// Priority relay
	RelayURL    string
	RelayAPIKey string

	// Wallet
	WalletPrivateKey string

	// Operator platform fee
	OperatorFeeDest     string
	OperatorFeeLamports uint64
	OperatorFeeHeadroom uint32

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
	ClickHouseEnabled  bool

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// API server
	ServerAddr string
	APIKey     string
	DevMode    bool

	// Execution
	ExecTimeout time.Duration
}

func Load() *Config {
	return &Config{
		// RPC
		RPCUrl:            getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		WSUrl:             getEnv("SOLANA_WS_URL", "wss://api.mainnet-beta.solana.com"),
		FetchRatePerSec:   getIntEnv("FETCH_RATE_PER_SEC", 10),
		HeartbeatInterval: getDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second),

		// Jupiter
		JupiterURL:    getEnv("JUPITER_URL", "https://api.jup.ag/swap/v1"),
		JupiterAPIKey: getEnv("JUPITER_API_KEY", ""),

		// Relay; empty disables relay submission entirely
		RelayURL:    getEnv("RELAY_URL", ""),
		RelayAPIKey: getEnv("RELAY_API_KEY", ""),

		// Wallet
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),

		// Operator fee
		OperatorFeeDest:     getEnv("OPERATOR_FEE_DEST", ""),
		OperatorFeeLamports: uint64(getIntEnv("OPERATOR_FEE_LAMPORTS", 0)),
		OperatorFeeHeadroom: uint32(getIntEnv("OPERATOR_FEE_HEADROOM_CU", 600)),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "copytrader"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickHouseEnabled:  getBoolEnv("CLICKHOUSE_ENABLED", false),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// API server
		ServerAddr: getEnv("SERVER_ADDR", ":8090"),
		APIKey:     getEnv("API_KEY", ""),
		DevMode:    getBoolEnv("DEV_MODE", false),

		// Execution
		ExecTimeout: getDurationEnv("EXEC_TIMEOUT", 45*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
