package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/storage"
)

// ClickHouseStore persists execution results and derived target swaps for
// offline analysis.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

var _ storage.HistoryStore = (*ClickHouseStore)(nil)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

func NewClickHouseStore(cfg ClickHouseConfig, logger *logrus.Logger) (*ClickHouseStore, error) {
	if cfg.Database == "" {
		cfg.Database = "copytrader"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

func (c *ClickHouseStore) RecordExecution(ctx context.Context, res *models.ExecutionResult) error {
	query := `
		INSERT INTO executions (
			target, strategy, kind, target_signature, success, confirmed, error,
			input_mint, output_mint, amount_in, quoted_out,
			tip_lamports, mirrored_signature, submitted_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		res.Target,
		res.Strategy,
		res.Kind,
		res.Signature,
		res.Success,
		res.Confirmed,
		res.Error,
		res.InputMint,
		res.OutputMint,
		res.AmountIn,
		res.QuotedOut,
		res.TipLamports,
		res.MirroredSignature,
		res.SubmittedAt,
		res.Duration.Milliseconds(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) RecordSwap(ctx context.Context, info *models.SwapInfo) error {
	query := `
		INSERT INTO target_swaps (
			signer, signature, slot, block_time,
			from_mint, from_native, to_mint, to_native,
			from_amount, to_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		info.Signer,
		info.Signature,
		info.Slot,
		info.BlockTime,
		info.FromAsset.Mint,
		info.FromAsset.IsNative,
		info.ToAsset.Mint,
		info.ToAsset.IsNative,
		info.FromAmount.String(),
		info.ToAmount.String(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
