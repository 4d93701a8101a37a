package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// SellSizing selects how a sell strategy computes the mirrored amount.
type SellSizing string

const (
	// SizingFixed sells a fixed fraction of the operator's holdings.
	SizingFixed SellSizing = "fixed"
	// SizingMirror sells the same fraction of the operator's holdings
	// that the target sold of theirs.
	SizingMirror SellSizing = "mirror"
)

const (
	maxSlippageBps = 5000
	maxFractionBps = 10000
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var validTipPercentiles = map[int]bool{25: true, 50: true, 75: true, 95: true, 99: true}

// BuyStrategy mirrors a target's native-asset buy with a fixed spend.
type BuyStrategy struct {
	Name         string `json:"name"`
	SourceMint   string `json:"source_mint"`
	SourceAmount uint64 `json:"source_amount"` // lamports / raw units
	SlippageBps  uint16 `json:"slippage_bps"`

	TipPercentile int    `json:"tip_percentile"`
	TipFeeRatio   uint16 `json:"tip_fee_ratio_bps"` // share of the tip budget paid as a direct tip, in bps
}

// SellStrategy mirrors a target's token sell, sized from the operator's
// own holdings.
type SellStrategy struct {
	Name        string     `json:"name"`
	Sizing      SellSizing `json:"sizing"`
	FractionBps uint16     `json:"fraction_bps,omitempty"` // used when Sizing == fixed
	SlippageBps uint16     `json:"slippage_bps"`

	TipPercentile int    `json:"tip_percentile"`
	TipFeeRatio   uint16 `json:"tip_fee_ratio_bps"`
}

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid strategy name %q", name)
	}
	return nil
}

func validateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid address %q: expected 32 bytes, got %d", addr, len(raw))
	}
	return nil
}

func validateTip(percentile int, ratio uint16) error {
	if !validTipPercentiles[percentile] {
		return fmt.Errorf("tip percentile must be one of 25, 50, 75, 95, 99, got %d", percentile)
	}
	if ratio > maxFractionBps {
		return fmt.Errorf("tip/fee ratio %d exceeds %d bps", ratio, maxFractionBps)
	}
	return nil
}

// Validate rejects malformed buy strategies at the mutation boundary.
func (s *BuyStrategy) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if err := validateAddress(s.SourceMint); err != nil {
		return fmt.Errorf("source mint: %w", err)
	}
	if s.SourceAmount == 0 {
		return fmt.Errorf("source amount must be positive")
	}
	if s.SlippageBps > maxSlippageBps {
		return fmt.Errorf("slippage %d exceeds %d bps", s.SlippageBps, maxSlippageBps)
	}
	return validateTip(s.TipPercentile, s.TipFeeRatio)
}

// Validate rejects malformed sell strategies at the mutation boundary.
func (s *SellStrategy) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	switch s.Sizing {
	case SizingFixed:
		if s.FractionBps == 0 || s.FractionBps > maxFractionBps {
			return fmt.Errorf("selling fraction must be in (0, %d] bps, got %d", maxFractionBps, s.FractionBps)
		}
	case SizingMirror:
	default:
		return fmt.Errorf("unknown sizing mode %q", s.Sizing)
	}
	if s.SlippageBps > maxSlippageBps {
		return fmt.Errorf("slippage %d exceeds %d bps", s.SlippageBps, maxSlippageBps)
	}
	return validateTip(s.TipPercentile, s.TipFeeRatio)
}
