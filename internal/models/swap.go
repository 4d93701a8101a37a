package models

import (
	"math/big"
	"time"
)

// Asset identifies one leg of a swap. The native asset (SOL) is carried as
// the wSOL mint with IsNative set; token legs carry their mint and the
// token program that owns it.
type Asset struct {
	Mint         string `json:"mint"`
	TokenProgram string `json:"token_program"`
	IsNative     bool   `json:"is_native"`
}

// SwapInfo is the canonical result of parsing one confirmed transaction.
// Amounts are ledger base units (lamports / raw token units); the native
// leg is already corrected for fee, rent and relay tips. Immutable once
// constructed.
type SwapInfo struct {
	Signer string `json:"signer"`

	FromAsset Asset `json:"from_asset"`
	ToAsset   Asset `json:"to_asset"`

	FromAmount *big.Int `json:"from_amount"`
	ToAmount   *big.Int `json:"to_amount"`

	// Pre/post balance of the sold asset, kept for proportional sizing
	// (how large a fraction of their holdings the target sold).
	FromPreBalance  *big.Int `json:"from_pre_balance"`
	FromPostBalance *big.Int `json:"from_post_balance"`

	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
}

// BoughtWithNative reports whether the signer spent SOL to acquire a token.
func (s *SwapInfo) BoughtWithNative() bool { return s.FromAsset.IsNative }

// SoldForNative reports whether the signer sold a token for SOL.
func (s *SwapInfo) SoldForNative() bool { return s.ToAsset.IsNative }

// SoldFraction returns fromAmount/fromPreBalance as a rational, or nil when
// the pre-balance is zero.
func (s *SwapInfo) SoldFraction() *big.Rat {
	if s.FromPreBalance == nil || s.FromPreBalance.Sign() <= 0 {
		return nil
	}
	return new(big.Rat).SetFrac(s.FromAmount, s.FromPreBalance)
}

// ExecutionResult records the outcome of one strategy instance, success or
// failure, for the history log.
type ExecutionResult struct {
	Target    string `json:"target"`
	Strategy  string `json:"strategy"`
	Kind      string `json:"kind"` // "buy" or "sell"
	Signature string `json:"signature,omitempty"`
	Success   bool   `json:"success"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`

	InputMint  string `json:"input_mint"`
	OutputMint string `json:"output_mint"`
	AmountIn   string `json:"amount_in"`
	QuotedOut  string `json:"quoted_out"`

	TipLamports uint64 `json:"tip_lamports"`

	MirroredSignature string        `json:"mirrored_signature"`
	SubmittedAt       time.Time     `json:"submitted_at"`
	Duration          time.Duration `json:"duration"`
}
