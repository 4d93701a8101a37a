package storage

import (
	"context"
	"io"

	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/strategy"
)

// HistoryStore defines the interface for persistent execution history
type HistoryStore interface {
	// RecordExecution appends one strategy execution outcome
	RecordExecution(ctx context.Context, res *models.ExecutionResult) error

	// RecordSwap appends one derived target swap
	RecordSwap(ctx context.Context, info *models.SwapInfo) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// StrategyStore defines the persistence boundary for the strategy table
type StrategyStore interface {
	// LoadStrategies restores the saved table state
	LoadStrategies(ctx context.Context) (strategy.TableState, error)

	// SaveStrategies replaces the saved table state
	SaveStrategies(ctx context.Context, state strategy.TableState) error

	// RecentExecutions returns up to limit most recent execution results
	RecentExecutions(ctx context.Context, limit int64) ([]*models.ExecutionResult, error)

	// AddRecentExecution pushes a result onto the capped recent list
	AddRecentExecution(ctx context.Context, res *models.ExecutionResult) error

	// RecentSwaps returns up to limit most recent derived target swaps
	RecentSwaps(ctx context.Context, limit int64) ([]*models.SwapInfo, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}
