package strategy

import (
	"fmt"
	"math/big"

	"solana-copy-trader/internal/models"
)

var bpsDenominator = big.NewInt(10000)

// sellAmount computes the mirrored sell size from the operator's own
// holdings. Fixed sizing scales the balance by the configured fraction;
// mirror sizing scales it by the fraction the target sold of theirs.
// All arithmetic is integer, truncating toward zero.
func sellAmount(s SellStrategy, operatorBalance *big.Int, target *models.SwapInfo) (*big.Int, error) {
	if operatorBalance == nil || operatorBalance.Sign() <= 0 {
		return nil, fmt.Errorf("no holdings of %s to sell", target.FromAsset.Mint)
	}

	switch s.Sizing {
	case SizingFixed:
		amount := new(big.Int).Mul(operatorBalance, big.NewInt(int64(s.FractionBps)))
		amount.Quo(amount, bpsDenominator)
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("fixed fraction %d bps of %s rounds to zero", s.FractionBps, operatorBalance)
		}
		return amount, nil

	case SizingMirror:
		if target.FromPreBalance == nil || target.FromPreBalance.Sign() <= 0 {
			return nil, fmt.Errorf("target pre-balance unavailable for mirror sizing")
		}
		amount := new(big.Int).Mul(operatorBalance, target.FromAmount)
		amount.Quo(amount, target.FromPreBalance)
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("mirrored fraction of %s rounds to zero", operatorBalance)
		}
		return amount, nil

	default:
		return nil, fmt.Errorf("unknown sizing mode %q", s.Sizing)
	}
}

// splitTipBudget divides a tip-market read between the direct relay tip
// and the compute-unit price budget according to the strategy's ratio.
// ratioBps is the share paid as a direct tip.
func splitTipBudget(total *big.Int, ratioBps uint16) (tip, feeBudget *big.Int) {
	tip = new(big.Int).Mul(total, big.NewInt(int64(ratioBps)))
	tip.Quo(tip, bpsDenominator)
	feeBudget = new(big.Int).Sub(total, tip)
	return tip, feeBudget
}
