package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/history"
	"solana-copy-trader/internal/jupiter"
	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/relay"
	"solana-copy-trader/internal/rpc"
	"solana-copy-trader/internal/server"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/strategy"
	"solana-copy-trader/internal/subs"
	"solana-copy-trader/internal/wallet"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// fanoutHistory records swaps and executions in both the Redis recent
// lists and the ClickHouse history tables.
type fanoutHistory struct {
	redis      *history.RedisStore
	clickhouse storage.HistoryStore
}

func (f *fanoutHistory) RecordExecution(ctx context.Context, res *models.ExecutionResult) error {
	if err := f.redis.RecordExecution(ctx, res); err != nil {
		return err
	}
	return f.clickhouse.RecordExecution(ctx, res)
}

func (f *fanoutHistory) RecordSwap(ctx context.Context, info *models.SwapInfo) error {
	if err := f.redis.RecordSwap(ctx, info); err != nil {
		return err
	}
	return f.clickhouse.RecordSwap(ctx, info)
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if cfg.WalletPrivateKey == "" {
		logger.Fatal("WALLET_PRIVATE_KEY is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Wallet + RPC
	w, err := wallet.NewWallet(wallet.WalletConfig{
		RPCURL:       cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PrivateKey:   cfg.WalletPrivateKey,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize wallet")
	}
	logger.WithField("address", w.Address()).Info("wallet loaded")

	rpcClient := rpc.NewClient(rpc.ClientConfig{
		BaseURL:           cfg.RPCUrl,
		Timeout:           cfg.HTTPTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		RequestsPerSecond: float64(cfg.FetchRatePerSec),
		Logger:            logger,
	})

	// Redis: strategy persistence + recent execution history
	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	store, err := history.NewRedisStore(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create redis store")
	}

	// ClickHouse execution history (optional); Redis always keeps the
	// capped recent list for the API.
	var execHistory strategy.HistoryStore = store
	if cfg.ClickHouseEnabled {
		ch, err := history.NewClickHouseStore(history.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to ClickHouse")
		}
		defer ch.Close()
		execHistory = &fanoutHistory{redis: store, clickhouse: ch}
	}

	// Derivation engine and external services
	engine := parser.NewEngine(rpcClient, logger)
	quotes := jupiter.NewClient(cfg.JupiterURL, cfg.JupiterAPIKey, logger)

	// An empty RELAY_URL disables relay submission; mirrored transactions
	// then go out over plain RPC, untipped.
	var relaySvc strategy.RelayService
	if cfg.RelayURL != "" {
		relaySvc = relay.NewClient(cfg.RelayURL, cfg.RelayAPIKey, logger)
	} else {
		logger.Warn("no relay configured, submitting over plain RPC")
	}

	// Subscription manager feeds log events into the orchestrator; the
	// orchestrator pushes its watch set back down via Reconcile. The
	// handler closure breaks the construction cycle: no events flow
	// until Start, by which point the orchestrator exists.
	var orchestrator *strategy.Orchestrator
	manager := subs.NewManager(subs.ManagerConfig{
		Endpoint:          cfg.WSUrl,
		Commitment:        "confirmed",
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger,
	}, func(subID int64, ev subs.LogEvent) {
		orchestrator.OnLogEvent(subID, ev)
	})

	orchestrator, err = strategy.NewOrchestrator(strategy.OrchestratorConfig{
		Reconciler: manager,
		Fetcher:    rpcClient,
		Deriver:    engine,
		Quotes:     quotes,
		Relay:      relaySvc,
		Signer:     w,
		History:    execHistory,
		Store:      store,
		OperatorFee: strategy.OperatorFeeConfig{
			Destination: cfg.OperatorFeeDest,
			Lamports:    cfg.OperatorFeeLamports,
			HeadroomCU:  cfg.OperatorFeeHeadroom,
		},
		ExecTimeout: cfg.ExecTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create orchestrator")
	}

	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to connect websocket")
	}

	// Restore persisted strategies and start watching their targets.
	if err := orchestrator.LoadStrategies(ctx); err != nil {
		logger.WithError(err).Fatal("failed to restore strategies")
	}

	// Operator API
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Orchestrator: orchestrator,
			Store:        store,
			WalletAddr:   w.Address(),
			DevMode:      cfg.DevMode,
			Logger:       logger,
		},
		Config: server.ServerConfig{
			Addr:    cfg.ServerAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		// Stop matching first, let in-flight executions finish, then
		// drop the connection and the API.
		orchestrator.Stop()
		if err := manager.Close(); err != nil {
			logger.WithError(err).Warn("websocket close failed")
		}
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.ServerAddr).Info("copy trader starting")
	if err := srv.Start(); err != nil {
		if err.Error() == "http: Server closed" {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("shutdown wait failed")
	}
}
