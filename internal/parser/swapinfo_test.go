package parser

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"solana-copy-trader/internal/constants"
	"solana-copy-trader/internal/rpc"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigner = "CopyTargetWa11et111111111111111111111111111"
	testMintA  = "BonkMint1111111111111111111111111111111111"
	testMintB  = "WifMint11111111111111111111111111111111111"
)

type stubResolver struct {
	owner string
	err   error
}

func (s stubResolver) GetAccountOwner(_ context.Context, _ string) (string, error) {
	return s.owner, s.err
}

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEngine(stubResolver{owner: tokenProgramID}, logger)
}

// txRecord builds a confirmed transaction record with the signer at index 0.
func txRecord(preLamports, postLamports []uint64, fee uint64, extraKeys []string) *rpc.TransactionResult {
	keys := []rpc.AccountKey{{Pubkey: testSigner, Signer: true, Writable: true}}
	for _, k := range extraKeys {
		keys = append(keys, rpc.AccountKey{Pubkey: k, Writable: true})
	}
	blockTime := int64(1_700_000_000)
	return &rpc.TransactionResult{
		Slot:      123456,
		BlockTime: &blockTime,
		Meta: &rpc.TransactionMeta{
			Fee:          fee,
			PreBalances:  preLamports,
			PostBalances: postLamports,
		},
		Transaction: &rpc.Transaction{
			Signatures: []string{"testsig"},
			Message:    rpc.TransactionMessage{AccountKeys: keys},
		},
	}
}

func tokenBalance(mint string, amount uint64) rpc.TokenBalance {
	return rpc.TokenBalance{
		Mint:          mint,
		Owner:         testSigner,
		ProgramID:     tokenProgramID,
		UITokenAmount: rpc.TokenAmount{Amount: fmt.Sprintf("%d", amount), Decimals: 6},
	}
}

func TestDeriveSwapInfo_BuyWithNative(t *testing.T) {
	tx := txRecord(
		[]uint64{10_000_000_000},
		[]uint64{9_000_000_000},
		5_000,
		nil,
	)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 0)}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 500_000_000)}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)

	assert.True(t, info.BoughtWithNative())
	assert.True(t, info.FromAsset.IsNative)
	assert.Equal(t, constants.WSOLMint, info.FromAsset.Mint)
	assert.Equal(t, testMintA, info.ToAsset.Mint)
	assert.False(t, info.ToAsset.IsNative)
	assert.Equal(t, big.NewInt(999_995_000), info.FromAmount)
	assert.Equal(t, big.NewInt(500_000_000), info.ToAmount)
	assert.Equal(t, big.NewInt(10_000_000_000), info.FromPreBalance)
	assert.Equal(t, big.NewInt(9_000_000_000), info.FromPostBalance)
	assert.Equal(t, testSigner, info.Signer)
	assert.Equal(t, "testsig", info.Signature)
}

func TestDeriveSwapInfo_SellForNative(t *testing.T) {
	// Received 2 SOL for 800k tokens, minus the fee.
	tx := txRecord(
		[]uint64{1_000_000_000},
		[]uint64{2_999_995_000},
		5_000,
		nil,
	)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 1_000_000)}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 200_000)}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)

	assert.True(t, info.SoldForNative())
	assert.Equal(t, testMintA, info.FromAsset.Mint)
	assert.True(t, info.ToAsset.IsNative)
	assert.Equal(t, big.NewInt(800_000), info.FromAmount)
	assert.Equal(t, big.NewInt(2_000_000_000), info.ToAmount)
	assert.Equal(t, big.NewInt(1_000_000), info.FromPreBalance)
	assert.Equal(t, big.NewInt(200_000), info.FromPostBalance)
}

func TestDeriveSwapInfo_RentCorrection(t *testing.T) {
	// Swap spent 999_995_000; signer additionally funded one token account
	// creation at exactly the rent-exempt minimum.
	rent := uint64(constants.TokenAccountRentLamports)
	tx := txRecord(
		[]uint64{10_000_000_000, 0},
		[]uint64{10_000_000_000 - 999_995_000 - 5_000 - rent, rent},
		5_000,
		[]string{"NewTokenAccount1111111111111111111111111111"},
	)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 0)}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 500_000_000)}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(999_995_000), info.FromAmount)
}

func TestDeriveSwapInfo_TipCorrection(t *testing.T) {
	tip := uint64(1_000_000)
	tipAccount := constants.JitoTipAccounts[0]
	tx := txRecord(
		[]uint64{10_000_000_000, 50_000_000},
		[]uint64{10_000_000_000 - 999_995_000 - 5_000 - tip, 50_000_000 + tip},
		5_000,
		[]string{tipAccount},
	)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 0)}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 500_000_000)}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(999_995_000), info.FromAmount)
}

func TestDeriveSwapInfo_TokenToToken(t *testing.T) {
	tx := txRecord([]uint64{1_000_000_000}, []uint64{999_995_000}, 5_000, nil)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 1_000_000),
		tokenBalance(testMintB, 0),
	}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 400_000),
		tokenBalance(testMintB, 9_000_000),
	}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, testMintA, info.FromAsset.Mint)
	assert.Equal(t, testMintB, info.ToAsset.Mint)
	assert.False(t, info.FromAsset.IsNative)
	assert.False(t, info.ToAsset.IsNative)
	assert.Equal(t, big.NewInt(600_000), info.FromAmount)
	assert.Equal(t, big.NewInt(9_000_000), info.ToAmount)

	// Order-independence: swapping the balance entries yields the same legs.
	tx.Meta.PreTokenBalances[0], tx.Meta.PreTokenBalances[1] =
		tx.Meta.PreTokenBalances[1], tx.Meta.PreTokenBalances[0]
	tx.Meta.PostTokenBalances[0], tx.Meta.PostTokenBalances[1] =
		tx.Meta.PostTokenBalances[1], tx.Meta.PostTokenBalances[0]

	again, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, info.FromAsset, again.FromAsset)
	assert.Equal(t, info.ToAsset, again.ToAsset)
	assert.Equal(t, info.FromAmount, again.FromAmount)
	assert.Equal(t, info.ToAmount, again.ToAmount)
}

func TestDeriveSwapInfo_BothLegsDecreased(t *testing.T) {
	tx := txRecord([]uint64{1_000_000_000}, []uint64{999_995_000}, 5_000, nil)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 1_000_000),
		tokenBalance(testMintB, 2_000_000),
	}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 400_000),
		tokenBalance(testMintB, 1_500_000),
	}

	_, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	assert.ErrorIs(t, err, ErrInconsistentDeltas)
}

func TestDeriveSwapInfo_UnsupportedShapes(t *testing.T) {
	// No token deltas at all.
	tx := txRecord([]uint64{1_000_000_000}, []uint64{999_995_000}, 5_000, nil)
	_, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	assert.ErrorIs(t, err, ErrUnsupportedShape)

	// Three deltas (multi-hop routing).
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 100),
		tokenBalance(testMintB, 100),
		tokenBalance("ThirdMint111111111111111111111111111111111", 100),
	}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{
		tokenBalance(testMintA, 200),
		tokenBalance(testMintB, 300),
		tokenBalance("ThirdMint111111111111111111111111111111111", 0),
	}
	_, err = newTestEngine().DeriveSwapInfo(context.Background(), tx)
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestDeriveSwapInfo_FailedTransaction(t *testing.T) {
	tx := txRecord([]uint64{1_000_000_000}, []uint64{999_995_000}, 5_000, nil)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	_, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	assert.ErrorIs(t, err, ErrFailedTransaction)
}

func TestDeriveSwapInfo_MintOwnerLookupFails(t *testing.T) {
	tx := txRecord([]uint64{10_000_000_000}, []uint64{9_000_000_000}, 5_000, nil)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 0)}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{tokenBalance(testMintA, 500_000_000)}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := NewEngine(stubResolver{err: fmt.Errorf("account not found")}, logger)

	_, err := engine.DeriveSwapInfo(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve mint")
}

func TestDeriveSwapInfo_WSOLBalanceFoldedIntoNativeSide(t *testing.T) {
	// A wSOL token delta must not count as a token leg.
	tx := txRecord([]uint64{10_000_000_000}, []uint64{9_000_000_000}, 5_000, nil)
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{
		tokenBalance(constants.WSOLMint, 0),
		tokenBalance(testMintA, 0),
	}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{
		tokenBalance(constants.WSOLMint, 100),
		tokenBalance(testMintA, 500_000_000),
	}

	info, err := newTestEngine().DeriveSwapInfo(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, info.BoughtWithNative())
	assert.Equal(t, testMintA, info.ToAsset.Mint)
}
