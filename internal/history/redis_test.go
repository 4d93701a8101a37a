package history

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/strategy"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   2, // Use a separate DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	err = client.FlushDB(ctx).Err()
	require.NoError(t, err)

	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = client.FlushDB(ctx).Err()
	_ = client.Close()
}

func TestStrategyTableRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	// A fresh deployment has no saved table.
	state, err := store.LoadStrategies(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)

	table := strategy.NewTable()
	require.True(t, table.AddBuy("target-1", strategy.BuyStrategy{
		Name:          "momentum",
		SourceMint:    "So11111111111111111111111111111111111111112",
		SourceAmount:  1_000_000,
		SlippageBps:   100,
		TipPercentile: 50,
	}))

	require.NoError(t, store.SaveStrategies(ctx, table.Snapshot()))

	loaded, err := store.LoadStrategies(ctx)
	require.NoError(t, err)

	restored := strategy.NewTable()
	restored.Restore(loaded)
	assert.Equal(t, []string{"target-1"}, restored.Targets())

	buys, _ := restored.Get("target-1")
	require.Len(t, buys, 1)
	assert.Equal(t, "momentum", buys[0].Name)
	assert.Equal(t, uint64(1_000_000), buys[0].SourceAmount)
}

func TestRecentExecutionsCapped(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 110; i++ {
		res := &models.ExecutionResult{
			Target:   "target-1",
			Strategy: fmt.Sprintf("s%d", i),
			Kind:     "buy",
			Success:  true,
		}
		require.NoError(t, store.AddRecentExecution(ctx, res))
	}

	out, err := store.RecentExecutions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, out, 100)
	assert.Equal(t, "s109", out[0].Strategy, "newest first")

	out, err = store.RecentExecutions(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestRecentSwapsRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info := &models.SwapInfo{
			Signer:     "target-1",
			FromAsset:  models.Asset{Mint: "So11111111111111111111111111111111111111112", IsNative: true},
			ToAsset:    models.Asset{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
			FromAmount: big.NewInt(int64(1_000_000 * (i + 1))),
			ToAmount:   big.NewInt(500),
			Signature:  fmt.Sprintf("sig-%d", i),
		}
		require.NoError(t, store.RecordSwap(ctx, info))
	}

	out, err := store.RecentSwaps(ctx, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "sig-2", out[0].Signature, "newest first")
	assert.Equal(t, big.NewInt(3_000_000), out[0].FromAmount)
	assert.True(t, out[0].FromAsset.IsNative)

	out, err = store.RecentSwaps(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
