package parser

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"solana-copy-trader/internal/constants"
	"solana-copy-trader/internal/models"
	"solana-copy-trader/internal/rpc"

	"github.com/sirupsen/logrus"
)

var (
	// ErrFailedTransaction means the transaction has a non-null error status
	// and carries no swap semantics.
	ErrFailedTransaction = errors.New("transaction failed on chain")

	// ErrNoSigner means no account key is flagged as signer.
	ErrNoSigner = errors.New("no signer account")

	// ErrUnsupportedShape means the signer's token deltas do not match any
	// supported swap shape (plain transfers, multi-hop routing, non-swaps).
	ErrUnsupportedShape = errors.New("unsupported swap shape")

	// ErrInconsistentDeltas means a two-leg swap where both legs moved in
	// the same direction.
	ErrInconsistentDeltas = errors.New("inconsistent balance deltas")
)

// MintOwnerResolver resolves the program that owns a mint account. The RPC
// client satisfies this.
type MintOwnerResolver interface {
	GetAccountOwner(ctx context.Context, pubkey string) (string, error)
}

// Engine derives canonical swap info from confirmed transaction records.
// All arithmetic is integer; amounts are ledger base units.
type Engine struct {
	resolver     MintOwnerResolver
	logger       *logrus.Logger
	tipAccounts  map[string]struct{}
	rentLamports *big.Int
}

// NewEngine creates a derivation engine with the well-known tip account set
// and token-account rent amount.
func NewEngine(resolver MintOwnerResolver, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	tips := make(map[string]struct{}, len(constants.JitoTipAccounts))
	for _, a := range constants.JitoTipAccounts {
		tips[a] = struct{}{}
	}
	return &Engine{
		resolver:     resolver,
		logger:       logger,
		tipAccounts:  tips,
		rentLamports: big.NewInt(constants.TokenAccountRentLamports),
	}
}

// tokenDelta is one signer-owned asset whose balance changed.
type tokenDelta struct {
	mint      string
	programID string
	pre       *big.Int
	post      *big.Int
}

func (d *tokenDelta) sold() bool { return d.post.Cmp(d.pre) < 0 }

func (d *tokenDelta) abs() *big.Int {
	diff := new(big.Int).Sub(d.post, d.pre)
	return diff.Abs(diff)
}

// DeriveSwapInfo infers which asset was sold and which was bought from the
// signer's pre/post balance deltas, with the native leg corrected for the
// transaction fee, incidental rent movements and relay tips.
func (e *Engine) DeriveSwapInfo(ctx context.Context, tx *rpc.TransactionResult) (*models.SwapInfo, error) {
	if tx == nil || tx.Meta == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("incomplete transaction record")
	}
	if tx.Meta.Err != nil {
		return nil, ErrFailedTransaction
	}

	keys := tx.Transaction.Message.AccountKeys
	signerIdx := -1
	signerCount := 0
	for i, k := range keys {
		if k.Signer {
			signerCount++
			if signerIdx < 0 {
				signerIdx = i
			}
		}
	}
	if signerIdx < 0 {
		return nil, ErrNoSigner
	}
	if signerCount > 1 {
		e.logger.WithFields(logrus.Fields{
			"signers":   signerCount,
			"signature": firstSignature(tx),
		}).Warn("multiple signers, using first")
	}
	signer := keys[signerIdx].Pubkey

	deltas, err := signerTokenDeltas(tx.Meta, signer)
	if err != nil {
		return nil, err
	}

	info := &models.SwapInfo{
		Signer:    signer,
		Signature: firstSignature(tx),
		Slot:      tx.Slot,
	}
	if tx.BlockTime != nil {
		info.BlockTime = time.Unix(*tx.BlockTime, 0).UTC()
	}

	switch len(deltas) {
	case 1:
		if err := e.deriveNativeLeg(tx, signerIdx, deltas[0], info); err != nil {
			return nil, err
		}
	case 2:
		if err := deriveTokenLegs(deltas, info); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d signer token deltas", ErrUnsupportedShape, len(deltas))
	}

	if err := e.resolveOwners(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// deriveNativeLeg handles the SOL<->token case. The native amount comes from
// the signer's lamport balances, corrected by the fee, by any exact
// rent-sized account movements, and by transfers landing on relay tip
// accounts.
func (e *Engine) deriveNativeLeg(tx *rpc.TransactionResult, signerIdx int, token *tokenDelta, info *models.SwapInfo) error {
	meta := tx.Meta
	if signerIdx >= len(meta.PreBalances) || signerIdx >= len(meta.PostBalances) {
		return fmt.Errorf("signer index %d out of balance range", signerIdx)
	}

	pre := new(big.Int).SetUint64(meta.PreBalances[signerIdx])
	post := new(big.Int).SetUint64(meta.PostBalances[signerIdx])

	// corrected = post - pre + fee + tips + rentNet; the residual is the
	// lamports the swap itself moved.
	corrected := new(big.Int).Sub(post, pre)
	corrected.Add(corrected, new(big.Int).SetUint64(meta.Fee))

	keys := tx.Transaction.Message.AccountKeys
	for i, k := range keys {
		if i == signerIdx || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		d := new(big.Int).Sub(
			new(big.Int).SetUint64(meta.PostBalances[i]),
			new(big.Int).SetUint64(meta.PreBalances[i]),
		)
		if d.Sign() == 0 {
			continue
		}
		if _, isTip := e.tipAccounts[k.Pubkey]; isTip && d.Sign() > 0 {
			corrected.Add(corrected, d)
			continue
		}
		if d.CmpAbs(e.rentLamports) == 0 {
			// Rent moving out of the signer (account created) shows up as a
			// positive delta on the other account, a closure refund as a
			// negative one.
			corrected.Add(corrected, d)
		}
	}

	native := models.Asset{
		Mint:         constants.WSOLMint,
		TokenProgram: tokenProgramID,
		IsNative:     true,
	}
	tokenAsset := models.Asset{Mint: token.mint, TokenProgram: token.programID}
	nativeAmount := new(big.Int).Abs(corrected)

	if token.sold() {
		// Token decreased: target sold the token for SOL.
		info.FromAsset = tokenAsset
		info.ToAsset = native
		info.FromAmount = token.abs()
		info.ToAmount = nativeAmount
		info.FromPreBalance = token.pre
		info.FromPostBalance = token.post
	} else {
		// Token increased: target bought the token with SOL.
		info.FromAsset = native
		info.ToAsset = tokenAsset
		info.FromAmount = nativeAmount
		info.ToAmount = token.abs()
		info.FromPreBalance = pre
		info.FromPostBalance = post
	}
	return nil
}

// deriveTokenLegs handles the token<->token case: the decreased leg was
// sold. Order of the input deltas does not matter.
func deriveTokenLegs(deltas []*tokenDelta, info *models.SwapInfo) error {
	a, b := deltas[0], deltas[1]
	if a.sold() == b.sold() {
		return ErrInconsistentDeltas
	}
	from, to := a, b
	if b.sold() {
		from, to = b, a
	}

	info.FromAsset = models.Asset{Mint: from.mint, TokenProgram: from.programID}
	info.ToAsset = models.Asset{Mint: to.mint, TokenProgram: to.programID}
	info.FromAmount = from.abs()
	info.ToAmount = to.abs()
	info.FromPreBalance = from.pre
	info.FromPostBalance = from.post
	return nil
}

// resolveOwners fills in each token leg's owning program through an
// account-info lookup. Failure fails the whole derivation.
func (e *Engine) resolveOwners(ctx context.Context, info *models.SwapInfo) error {
	for _, leg := range []*models.Asset{&info.FromAsset, &info.ToAsset} {
		if leg.IsNative {
			continue
		}
		owner, err := e.resolver.GetAccountOwner(ctx, leg.Mint)
		if err != nil {
			return fmt.Errorf("resolve mint %s owner: %w", leg.Mint, err)
		}
		leg.TokenProgram = owner
	}
	return nil
}

// signerTokenDeltas aggregates the signer's token balances per mint and
// returns the assets whose amounts changed, sorted by mint for determinism.
// wSOL balances are folded into the native side and excluded here.
func signerTokenDeltas(meta *rpc.TransactionMeta, signer string) ([]*tokenDelta, error) {
	byMint := make(map[string]*tokenDelta)

	accumulate := func(balances []rpc.TokenBalance, post bool) error {
		for _, tb := range balances {
			if tb.Owner != signer || tb.Mint == constants.WSOLMint {
				continue
			}
			amount, ok := new(big.Int).SetString(tb.UITokenAmount.Amount, 10)
			if !ok {
				return fmt.Errorf("invalid token amount %q for mint %s", tb.UITokenAmount.Amount, tb.Mint)
			}
			d := byMint[tb.Mint]
			if d == nil {
				d = &tokenDelta{
					mint:      tb.Mint,
					programID: tb.ProgramID,
					pre:       new(big.Int),
					post:      new(big.Int),
				}
				byMint[tb.Mint] = d
			}
			if post {
				d.post.Add(d.post, amount)
			} else {
				d.pre.Add(d.pre, amount)
			}
		}
		return nil
	}

	if err := accumulate(meta.PreTokenBalances, false); err != nil {
		return nil, err
	}
	if err := accumulate(meta.PostTokenBalances, true); err != nil {
		return nil, err
	}

	deltas := make([]*tokenDelta, 0, len(byMint))
	for _, d := range byMint {
		if d.pre.Cmp(d.post) != 0 {
			deltas = append(deltas, d)
		}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].mint < deltas[j].mint })
	return deltas, nil
}

func firstSignature(tx *rpc.TransactionResult) string {
	if tx.Transaction != nil && len(tx.Transaction.Signatures) > 0 {
		return tx.Transaction.Signatures[0]
	}
	return ""
}

// tokenProgramID is the classic SPL token program, used for the native leg.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
