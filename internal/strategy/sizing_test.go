package strategy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/models"
)

func TestSellAmountFixedFraction(t *testing.T) {
	s := SellStrategy{Name: "quarter", Sizing: SizingFixed, FractionBps: 2500}

	amount, err := sellAmount(s, big.NewInt(1_000_000), &models.SwapInfo{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(250_000), amount)
}

func TestSellAmountMirrorsTargetFraction(t *testing.T) {
	s := SellStrategy{Name: "mirror", Sizing: SizingMirror}
	// Target sold 300k of an 900k pre-balance: one third.
	info := &models.SwapInfo{
		FromAmount:     big.NewInt(300_000),
		FromPreBalance: big.NewInt(900_000),
	}

	amount, err := sellAmount(s, big.NewInt(600_000), info)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200_000), amount)
}

func TestSellAmountAbortsOnNoHoldings(t *testing.T) {
	s := SellStrategy{Name: "quarter", Sizing: SizingFixed, FractionBps: 2500}

	_, err := sellAmount(s, big.NewInt(0), &models.SwapInfo{})
	require.Error(t, err)

	_, err = sellAmount(s, nil, &models.SwapInfo{})
	require.Error(t, err)
}

func TestSellAmountAbortsWhenFractionRoundsToZero(t *testing.T) {
	s := SellStrategy{Name: "tiny", Sizing: SizingFixed, FractionBps: 1}

	_, err := sellAmount(s, big.NewInt(3), &models.SwapInfo{})
	require.Error(t, err)
}

func TestSellAmountMirrorNeedsPreBalance(t *testing.T) {
	s := SellStrategy{Name: "mirror", Sizing: SizingMirror}
	info := &models.SwapInfo{
		FromAmount:     big.NewInt(100),
		FromPreBalance: big.NewInt(0),
	}

	_, err := sellAmount(s, big.NewInt(1_000), info)
	require.Error(t, err)
}

func TestSplitTipBudget(t *testing.T) {
	tip, fee := splitTipBudget(big.NewInt(100_000), 3000)
	assert.Equal(t, big.NewInt(30_000), tip)
	assert.Equal(t, big.NewInt(70_000), fee)

	tip, fee = splitTipBudget(big.NewInt(100_000), 10000)
	assert.Equal(t, big.NewInt(100_000), tip)
	assert.Zero(t, fee.Sign())
}
