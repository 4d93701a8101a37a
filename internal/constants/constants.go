package constants

import "time"

// WSOLMint is the wrapped-SOL mint, used as the native-asset sentinel in
// derived swaps.
const WSOLMint = "So11111111111111111111111111111111111111112"

// TokenAccountRentLamports is the rent-exempt minimum for a 165-byte SPL
// token account. A native balance delta that equals this exactly is an
// incidental account creation (or closure refund), not swap value.
const TokenAccountRentLamports = 2_039_280

// DEX program addresses scanned for in raw log lines. Events whose logs
// mention none of these are dropped before the transaction is fetched.
var DexPrograms = map[string]string{
	"Jupiter":       "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
	"RaydiumAMM":    "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
	"Orca":          "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
	"OrcaWhirlpool": "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
	"PumpFun":       "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
}

// DexProgramList returns the allow-list as a slice for log scanning.
func DexProgramList() []string {
	out := make([]string, 0, len(DexPrograms))
	for _, addr := range DexPrograms {
		out = append(out, addr)
	}
	return out
}

// JitoTipAccounts are the relay tip destinations. Lamports landing on any
// of these within a watched transaction are the relay incentive and are
// excluded from the native swap leg.
var JitoTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduQRnCLyNJv3PcRm4bvDMEcsqnt1ft59n",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// JSON-RPC request id ranges for the websocket subscription manager.
// Housekeeping requests (forced unsubscribes of unrecognized subscription
// ids) stay below the watch range; watch and unwatch draw from disjoint
// circular pools so no two in-flight requests can share an id.
const (
	HousekeepingMaxID = 1000
	WatchIDFirst      = 1001
	WatchIDLast       = 1500
	UnwatchIDFirst    = 1501
	UnwatchIDLast     = 2000
)

// HeartbeatInterval is how often the subscription manager pings the
// websocket connection.
const HeartbeatInterval = 30 * time.Second

// Redis keys
const (
	RedisKeyStrategyTable    = "copytrader:strategies"
	RedisKeyRecentExecutions = "copytrader:executions:recent"
	RedisKeyRecentSwaps      = "copytrader:swaps:recent"
)

// Limits
const (
	MaxRecentExecutions = 100
	MaxRecentSwaps      = 100
)
