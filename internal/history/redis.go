package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"solana-copy-trader/internal/constants"
	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/strategy"
)

// RedisStore persists the strategy table and capped lists of recent
// execution results and target swaps.
type RedisStore struct {
	client redis.Cmdable
}

var _ storage.StrategyStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client}, nil
}

// LoadStrategies restores the saved table state. A missing key is not an
// error: a fresh deployment starts with an empty table.
func (s *RedisStore) LoadStrategies(ctx context.Context) (strategy.TableState, error) {
	val, err := s.client.Get(ctx, constants.RedisKeyStrategyTable).Result()
	if err == redis.Nil {
		return strategy.TableState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy table: %w", err)
	}

	var state strategy.TableState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("unmarshal strategy table: %w", err)
	}
	return state, nil
}

func (s *RedisStore) SaveStrategies(ctx context.Context, state strategy.TableState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal strategy table: %w", err)
	}
	if err := s.client.Set(ctx, constants.RedisKeyStrategyTable, b, 0).Err(); err != nil {
		return fmt.Errorf("save strategy table: %w", err)
	}
	return nil
}

// AddRecentExecution pushes a result onto the recent list, trimmed to
// MaxRecentExecutions.
func (s *RedisStore) AddRecentExecution(ctx context.Context, res *models.ExecutionResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentExecutions, b)
	pipe.LTrim(ctx, constants.RedisKeyRecentExecutions, 0, constants.MaxRecentExecutions-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent execution: %w", err)
	}
	return nil
}

// RecordExecution satisfies the orchestrator's history surface; Redis
// keeps only the capped recent list.
func (s *RedisStore) RecordExecution(ctx context.Context, res *models.ExecutionResult) error {
	return s.AddRecentExecution(ctx, res)
}

// RecentExecutions returns up to limit results, newest first.
func (s *RedisStore) RecentExecutions(ctx context.Context, limit int64) ([]*models.ExecutionResult, error) {
	if limit <= 0 || limit > constants.MaxRecentExecutions {
		limit = constants.MaxRecentExecutions
	}

	vals, err := s.client.LRange(ctx, constants.RedisKeyRecentExecutions, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent executions: %w", err)
	}

	out := make([]*models.ExecutionResult, 0, len(vals))
	for _, v := range vals {
		var res models.ExecutionResult
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			continue
		}
		out = append(out, &res)
	}
	return out, nil
}

// RecordSwap pushes a derived target swap onto the recent list, trimmed
// to MaxRecentSwaps.
func (s *RedisStore) RecordSwap(ctx context.Context, info *models.SwapInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentSwaps, b)
	pipe.LTrim(ctx, constants.RedisKeyRecentSwaps, 0, constants.MaxRecentSwaps-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent swap: %w", err)
	}
	return nil
}

// RecentSwaps returns up to limit derived target swaps, newest first.
func (s *RedisStore) RecentSwaps(ctx context.Context, limit int64) ([]*models.SwapInfo, error) {
	if limit <= 0 || limit > constants.MaxRecentSwaps {
		limit = constants.MaxRecentSwaps
	}

	vals, err := s.client.LRange(ctx, constants.RedisKeyRecentSwaps, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent swaps: %w", err)
	}

	out := make([]*models.SwapInfo, 0, len(vals))
	for _, v := range vals {
		var info models.SwapInfo
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			continue
		}
		out = append(out, &info)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
