package strategy

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-copy-trader/internal/constants"
	"solana-copy-trader/internal/jupiter"
	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/relay"
	"solana-copy-trader/internal/rpc"
	"solana-copy-trader/internal/subs"
	"solana-copy-trader/internal/txbuilder"
	"solana-copy-trader/internal/wallet"
)

// Reconciler is the subscription manager surface the orchestrator drives:
// after every table mutation the desired watch set is pushed down.
type Reconciler interface {
	Reconcile(accounts []string)
}

// TransactionFetcher fetches a confirmed transaction by signature.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionResult, error)
}

// SwapDeriver turns a raw transaction record into swap semantics.
type SwapDeriver interface {
	DeriveSwapInfo(ctx context.Context, tx *rpc.TransactionResult) (*models.SwapInfo, error)
}

// QuoteService is the aggregator surface used per execution.
type QuoteService interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.QuoteResponse, error)
	SwapInstructions(ctx context.Context, req jupiter.SwapInstructionsRequest) (*jupiter.SwapInstructionsResponse, error)
}

// RelayService submits signed transactions and publishes tip market data.
type RelayService interface {
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
	TipAccounts(ctx context.Context) ([]string, error)
	TipFloor(ctx context.Context) (*relay.TipFloor, error)
}

// Signer is the wallet surface: balances, blockhash, signing, and the
// plain RPC submission fallback.
type Signer interface {
	Address() string
	PublicKey() solana.PublicKey
	SignTx(tx *solana.Transaction) error
	GetLatestBlockhash(ctx context.Context, commitment ...string) (solana.Hash, error)
	GetBalanceLamports(ctx context.Context) (*big.Int, error)
	GetTokenBalance(ctx context.Context, mint string) (*big.Int, error)
	SendTx(ctx context.Context, tx *solana.Transaction, opts *wallet.SendOptions) (string, error)
	ConfirmTransaction(ctx context.Context, signature, commitment string, timeout time.Duration) error
}

// HistoryStore records derived target swaps and execution outcomes;
// failures are logged, never fatal.
type HistoryStore interface {
	RecordSwap(ctx context.Context, info *models.SwapInfo) error
	RecordExecution(ctx context.Context, res *models.ExecutionResult) error
}

// StrategyStore is the persistence boundary: the table is loaded at
// startup, saved after every mutation, and flushed on shutdown.
type StrategyStore interface {
	LoadStrategies(ctx context.Context) (TableState, error)
	SaveStrategies(ctx context.Context, state TableState) error
}

// OperatorFeeConfig injects a platform fee transfer into every mirrored
// transaction when a destination is configured.
type OperatorFeeConfig struct {
	Destination string
	Lamports    uint64
	HeadroomCU  uint32
}

type OrchestratorConfig struct {
	Reconciler Reconciler
	Fetcher    TransactionFetcher
	Deriver    SwapDeriver
	Quotes     QuoteService
	Relay      RelayService
	Signer     Signer
	History    HistoryStore
	Store      StrategyStore

	OperatorFee OperatorFeeConfig
	// ExecTimeout bounds one quote → build → sign → submit pipeline.
	ExecTimeout time.Duration

	Logger *logrus.Logger
}

// Orchestrator owns the strategy table and runs the detection → sizing →
// execution pipeline for every qualifying event.
type Orchestrator struct {
	cfg    OrchestratorConfig
	table  *Table
	logger *logrus.Logger

	dexPrograms []string
	tipAccounts []string

	// mu makes the stopped check and the dispatch Add atomic against Stop.
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped chan struct{}
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Fetcher == nil || cfg.Deriver == nil {
		return nil, fmt.Errorf("orchestrator: fetcher and deriver are required")
	}
	if cfg.Quotes == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("orchestrator: quote service and signer are required")
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 45 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Orchestrator{
		cfg:         cfg,
		table:       NewTable(),
		logger:      cfg.Logger,
		dexPrograms: constants.DexProgramList(),
		tipAccounts: constants.JitoTipAccounts,
		stopped:     make(chan struct{}),
	}, nil
}

// LoadStrategies restores the persisted table and reconciles the watch set.
func (o *Orchestrator) LoadStrategies(ctx context.Context) error {
	if o.cfg.Store == nil {
		return nil
	}
	state, err := o.cfg.Store.LoadStrategies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load strategies: %w", err)
	}
	o.table.Restore(state)
	o.reconcile()
	o.logger.WithField("targets", len(o.table.Targets())).Info("strategy table restored")
	return nil
}

// Targets returns the current desired watch set.
func (o *Orchestrator) Targets() []string { return o.table.Targets() }

// Strategies returns copies of the strategies registered for target.
func (o *Orchestrator) Strategies(target string) ([]BuyStrategy, []SellStrategy) {
	return o.table.Get(target)
}

// Snapshot exposes the serializable table state for the API layer.
func (o *Orchestrator) Snapshot() TableState { return o.table.Snapshot() }

// AddBuyStrategy validates and registers a buy strategy. Duplicate keys
// are rejected with a warning and leave the table unchanged.
func (o *Orchestrator) AddBuyStrategy(target string, s BuyStrategy) (bool, error) {
	if err := validateAddress(target); err != nil {
		return false, fmt.Errorf("target: %w", err)
	}
	if err := s.Validate(); err != nil {
		return false, err
	}
	if !o.table.AddBuy(target, s) {
		o.logger.WithFields(logrus.Fields{
			"target":   target,
			"strategy": s.Name,
		}).Warn("buy strategy already exists")
		return false, nil
	}
	o.afterMutation(target, s.Name, "buy strategy added")
	return true, nil
}

// AddSellStrategy validates and registers a sell strategy.
func (o *Orchestrator) AddSellStrategy(target string, s SellStrategy) (bool, error) {
	if err := validateAddress(target); err != nil {
		return false, fmt.Errorf("target: %w", err)
	}
	if err := s.Validate(); err != nil {
		return false, err
	}
	if !o.table.AddSell(target, s) {
		o.logger.WithFields(logrus.Fields{
			"target":   target,
			"strategy": s.Name,
		}).Warn("sell strategy already exists")
		return false, nil
	}
	o.afterMutation(target, s.Name, "sell strategy added")
	return true, nil
}

// RemoveBuyStrategy drops a buy strategy; missing keys return false.
func (o *Orchestrator) RemoveBuyStrategy(target, name string) bool {
	if !o.table.RemoveBuy(target, name) {
		o.logger.WithFields(logrus.Fields{
			"target":   target,
			"strategy": name,
		}).Warn("buy strategy not found")
		return false
	}
	o.afterMutation(target, name, "buy strategy removed")
	return true
}

// RemoveSellStrategy drops a sell strategy; missing keys return false.
func (o *Orchestrator) RemoveSellStrategy(target, name string) bool {
	if !o.table.RemoveSell(target, name) {
		o.logger.WithFields(logrus.Fields{
			"target":   target,
			"strategy": name,
		}).Warn("sell strategy not found")
		return false
	}
	o.afterMutation(target, name, "sell strategy removed")
	return true
}

func (o *Orchestrator) afterMutation(target, name, msg string) {
	o.logger.WithFields(logrus.Fields{
		"target":   target,
		"strategy": name,
	}).Info(msg)
	o.reconcile()
	o.persist()
}

func (o *Orchestrator) reconcile() {
	if o.cfg.Reconciler != nil {
		o.cfg.Reconciler.Reconcile(o.table.Targets())
	}
}

func (o *Orchestrator) persist() {
	if o.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.cfg.Store.SaveStrategies(ctx, o.table.Snapshot()); err != nil {
		o.logger.WithError(err).Error("failed to persist strategy table")
	}
}

// Stop clears the table so no new matches start, then waits for in-flight
// executions and flushes persistence.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	select {
	case <-o.stopped:
		o.mu.Unlock()
		return
	default:
		close(o.stopped)
	}
	o.mu.Unlock()
	o.persist()
	o.table.Clear()
	o.wg.Wait()
	if o.cfg.Reconciler != nil {
		o.cfg.Reconciler.Reconcile(nil)
	}
}

// OnLogEvent is the subscription manager's event handler. It returns
// immediately; all work happens in a dispatched goroutine so a stuck
// external call can never stall the connection read loop.
func (o *Orchestrator) OnLogEvent(subID int64, ev subs.LogEvent) {
	if ev.Err != nil {
		return
	}
	if !o.mentionsDexProgram(ev.Logs) {
		return
	}
	o.mu.Lock()
	select {
	case <-o.stopped:
		o.mu.Unlock()
		return
	default:
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.handleEvent(ev)
	}()
}

// mentionsDexProgram scans raw log lines for the DEX allow-list before any
// RPC round-trip is spent on the event.
func (o *Orchestrator) mentionsDexProgram(logs []string) bool {
	for _, line := range logs {
		for _, program := range o.dexPrograms {
			if strings.Contains(line, program) {
				return true
			}
		}
	}
	return false
}

func (o *Orchestrator) handleEvent(ev subs.LogEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ExecTimeout)
	defer cancel()

	log := o.logger.WithFields(logrus.Fields{
		"target":    ev.Account,
		"signature": ev.Signature,
	})

	txResult, err := o.cfg.Fetcher.GetTransaction(ctx, ev.Signature)
	if err != nil {
		log.WithError(err).Warn("failed to fetch transaction")
		return
	}

	info, err := o.cfg.Deriver.DeriveSwapInfo(ctx, txResult)
	if err != nil {
		log.WithError(err).Debug("event is not a derivable swap")
		return
	}
	o.recordSwap(info)

	if !info.FromAsset.IsNative && !info.ToAsset.IsNative {
		log.Debug("token-to-token swap, no actionable strategy")
		return
	}

	buys, sells := o.table.Get(ev.Account)
	if len(buys) == 0 && len(sells) == 0 {
		return
	}

	// Strategy instances are independent: a plain errgroup (no shared
	// cancellation) so one failure cannot starve its siblings.
	var g errgroup.Group

	if info.BoughtWithNative() {
		for _, s := range buys {
			s := s
			if s.SourceMint != constants.WSOLMint {
				continue
			}
			g.Go(func() error {
				o.executeBuy(ctx, ev.Account, s, info)
				return nil
			})
		}
	}

	if !info.FromAsset.IsNative && info.ToAsset.IsNative {
		for _, s := range sells {
			s := s
			g.Go(func() error {
				o.executeSell(ctx, ev.Account, s, info)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (o *Orchestrator) executeBuy(ctx context.Context, target string, s BuyStrategy, info *models.SwapInfo) {
	res := &models.ExecutionResult{
		Target:     target,
		Strategy:   s.Name,
		Kind:       "buy",
		Signature:  info.Signature,
		InputMint:  s.SourceMint,
		OutputMint: info.ToAsset.Mint,
		AmountIn:   strconv.FormatUint(s.SourceAmount, 10),
	}

	amount := new(big.Int).SetUint64(s.SourceAmount)
	balance, err := o.cfg.Signer.GetBalanceLamports(ctx)
	if err != nil {
		o.record(res, time.Now(), fmt.Errorf("failed to read native balance: %w", err))
		return
	}
	if balance.Cmp(amount) < 0 {
		o.record(res, time.Now(), fmt.Errorf("insufficient native balance: have %s, need %s", balance, amount))
		return
	}

	o.execute(ctx, res, amount, s.SlippageBps, s.TipPercentile, s.TipFeeRatio)
}

func (o *Orchestrator) executeSell(ctx context.Context, target string, s SellStrategy, info *models.SwapInfo) {
	res := &models.ExecutionResult{
		Target:     target,
		Strategy:   s.Name,
		Kind:       "sell",
		Signature:  info.Signature,
		InputMint:  info.FromAsset.Mint,
		OutputMint: constants.WSOLMint,
	}

	balance, err := o.cfg.Signer.GetTokenBalance(ctx, info.FromAsset.Mint)
	if err != nil {
		o.record(res, time.Now(), fmt.Errorf("failed to read holdings: %w", err))
		return
	}
	amount, err := sellAmount(s, balance, info)
	if err != nil {
		o.record(res, time.Now(), err)
		return
	}
	res.AmountIn = amount.String()
	o.execute(ctx, res, amount, s.SlippageBps, s.TipPercentile, s.TipFeeRatio)
}

// execute runs one quote → build → adjust → sign → submit pipeline and
// records the outcome whatever happens.
func (o *Orchestrator) execute(ctx context.Context, res *models.ExecutionResult, amount *big.Int, slippageBps uint16, tipPercentile int, tipFeeRatio uint16) {
	started := time.Now()

	quote, err := o.cfg.Quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   res.InputMint,
		OutputMint:  res.OutputMint,
		Amount:      amount.String(),
		SlippageBps: &slippageBps,
	})
	if err != nil {
		o.record(res, started, fmt.Errorf("quote failed: %w", err))
		return
	}
	res.QuotedOut = quote.OutAmount

	ixResp, err := o.cfg.Quotes.SwapInstructions(ctx, jupiter.SwapInstructionsRequest{
		UserPublicKey: o.cfg.Signer.Address(),
		QuoteResponse: quote,
	})
	if err != nil {
		o.record(res, started, fmt.Errorf("swap build failed: %w", err))
		return
	}
	ixs, err := ixResp.CoreInstructions()
	if err != nil {
		o.record(res, started, fmt.Errorf("swap build failed: %w", err))
		return
	}

	builder := txbuilder.New(o.cfg.Signer.PublicKey(), ixs)

	unitLimit := ixResp.ComputeUnitLimit
	if unitLimit == 0 {
		unitLimit = txbuilder.DefaultComputeUnitLimit
	}
	builder.SetComputeUnitLimit(unitLimit)

	tipLamports, unitPrice, tipErr := o.tipSplit(ctx, tipPercentile, tipFeeRatio, unitLimit)
	if tipErr != nil {
		o.logger.WithError(tipErr).Warn("tip market read failed, submitting untipped")
	} else {
		if unitPrice > 0 {
			builder.SetComputeUnitPrice(unitPrice)
		}
		if tipLamports > 0 {
			tipAccount, err := o.tipAccount(ctx)
			if err != nil {
				o.record(res, started, fmt.Errorf("invalid tip account: %w", err))
				return
			}
			builder.AppendTip(tipAccount, tipLamports)
			res.TipLamports = tipLamports
		}
	}

	if fee := o.cfg.OperatorFee; fee.Destination != "" && fee.Lamports > 0 {
		dest, err := solana.PublicKeyFromBase58(fee.Destination)
		if err != nil {
			o.record(res, started, fmt.Errorf("invalid operator fee destination: %w", err))
			return
		}
		builder.PrependOperatorFee(dest, fee.Lamports, fee.HeadroomCU)
	}

	blockhash, err := o.cfg.Signer.GetLatestBlockhash(ctx, "confirmed")
	if err != nil {
		o.record(res, started, fmt.Errorf("blockhash fetch failed: %w", err))
		return
	}

	tx, err := builder.Build(blockhash)
	if err != nil {
		o.record(res, started, fmt.Errorf("transaction build failed: %w", err))
		return
	}
	if err := o.cfg.Signer.SignTx(tx); err != nil {
		o.record(res, started, fmt.Errorf("signing failed: %w", err))
		return
	}

	sig, err := o.submit(ctx, tx)
	if err != nil {
		o.record(res, started, fmt.Errorf("submission failed: %w", err))
		return
	}
	res.MirroredSignature = sig

	if err := o.cfg.Signer.ConfirmTransaction(ctx, sig, "confirmed", confirmTimeout); err != nil {
		o.record(res, started, fmt.Errorf("confirmation failed: %w", err))
		return
	}
	res.Confirmed = true
	o.record(res, started, nil)
}

// confirmTimeout bounds the post-submission confirmation poll; the
// execution context usually expires first.
const confirmTimeout = 30 * time.Second

// tipAccount picks the tip destination, preferring the relay's advertised
// set over the static fallback list.
func (o *Orchestrator) tipAccount(ctx context.Context) (solana.PublicKey, error) {
	accounts := o.tipAccounts
	if o.cfg.Relay != nil {
		fetched, err := o.cfg.Relay.TipAccounts(ctx)
		if err != nil {
			o.logger.WithError(err).Debug("tip account fetch failed, using static set")
		} else {
			accounts = fetched
		}
	}
	return solana.PublicKeyFromBase58(accounts[rand.Intn(len(accounts))])
}

// tipSplit sizes the relay incentive from the configured tip-floor
// percentile and splits it between a direct tip transfer and the
// compute-unit price.
func (o *Orchestrator) tipSplit(ctx context.Context, percentile int, ratioBps uint16, unitLimit uint32) (tipLamports, unitPriceMicro uint64, err error) {
	if o.cfg.Relay == nil {
		return 0, 0, nil
	}
	floor, err := o.cfg.Relay.TipFloor(ctx)
	if err != nil {
		return 0, 0, err
	}
	total, err := floor.AtPercentile(percentile)
	if err != nil {
		return 0, 0, err
	}

	tip, feeBudget := splitTipBudget(total, ratioBps)

	// lamports → micro-lamports per compute unit
	if unitLimit > 0 && feeBudget.Sign() > 0 {
		micro := new(big.Int).Mul(feeBudget, big.NewInt(1_000_000))
		micro.Quo(micro, big.NewInt(int64(unitLimit)))
		if micro.IsUint64() {
			unitPriceMicro = micro.Uint64()
		}
	}
	if tip.IsUint64() {
		tipLamports = tip.Uint64()
	}
	return tipLamports, unitPriceMicro, nil
}

// submit prefers the priority relay and falls back to plain RPC when no
// relay is configured.
func (o *Orchestrator) submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	if o.cfg.Relay != nil {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("failed to serialize transaction: %w", err)
		}
		return o.cfg.Relay.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	}
	return o.cfg.Signer.SendTx(ctx, tx, nil)
}

// recordSwap appends a derived target swap to the history store.
func (o *Orchestrator) recordSwap(info *models.SwapInfo) {
	if o.cfg.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.cfg.History.RecordSwap(ctx, info); err != nil {
		o.logger.WithError(err).Error("failed to record target swap")
	}
}

func (o *Orchestrator) record(res *models.ExecutionResult, started time.Time, execErr error) {
	res.SubmittedAt = started
	res.Duration = time.Since(started)
	res.Success = execErr == nil
	if execErr != nil {
		res.Error = execErr.Error()
	}

	log := o.logger.WithFields(logrus.Fields{
		"target":   res.Target,
		"strategy": res.Strategy,
		"kind":     res.Kind,
		"duration": res.Duration,
	})
	if execErr != nil {
		log.WithError(execErr).Warn("strategy execution failed")
	} else {
		log.WithField("mirrored_signature", res.MirroredSignature).Info("strategy executed")
	}

	if o.cfg.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.cfg.History.RecordExecution(ctx, res); err != nil {
		o.logger.WithError(err).Error("failed to record execution result")
	}
}
