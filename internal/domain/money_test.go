package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyEarnings(t *testing.T) {
	// 1000 at 12.5%/year -> 1000 * 0.125 / 365 = 0.342465...
	principal := decimal.NewFromInt(1000)
	rate := decimal.NewFromFloat(0.125)

	earnings := DailyEarnings(principal, rate)
	rounded := RoundForAsset(earnings, AssetUSDT)

	assert.Equal(t, "0.342465", rounded.String())
}

func TestSplitCancellation(t *testing.T) {
	principal := decimal.NewFromInt(1000)
	penaltyRate := decimal.NewFromFloat(0.10)

	refund, penalty := SplitCancellation(principal, penaltyRate, AssetUSDT)

	assert.Equal(t, "100", penalty.String())
	assert.Equal(t, "900", refund.String())
	assert.True(t, refund.Add(penalty).Equal(principal))
}

func TestSplitCancellationRemainderStaysInRefund(t *testing.T) {
	// Penalty on an awkward principal truncates; the refund keeps the dust.
	principal := decimal.RequireFromString("333.3333337")
	penaltyRate := decimal.NewFromFloat(0.10)

	refund, penalty := SplitCancellation(principal, penaltyRate, AssetUSDT)

	require.True(t, refund.Add(penalty).Equal(principal))
	assert.Equal(t, "33.333333", penalty.String())
}

func TestExchangeQuote(t *testing.T) {
	// 1 BTC -> USDT at 60000, 0.5% fee: fee 0.005 BTC, credit 59700 USDT.
	amount := decimal.NewFromInt(1)
	feeRate := decimal.NewFromFloat(0.005)
	rate := decimal.NewFromInt(60000)

	fee, credited := ExchangeQuote(amount, feeRate, rate, AssetUSDT)

	assert.Equal(t, "0.005", fee.String())
	assert.Equal(t, "59700", credited.String())
}

func TestRoundForAssetTruncates(t *testing.T) {
	v := decimal.RequireFromString("0.123456789")
	assert.Equal(t, "0.12345678", RoundForAsset(v, AssetBTC).String())
	assert.Equal(t, "0.123456", RoundForAsset(v, AssetUSDC).String())
}

func TestIsSupportedAsset(t *testing.T) {
	for _, asset := range SupportedAssets {
		assert.True(t, IsSupportedAsset(asset))
	}
	assert.False(t, IsSupportedAsset("DOGE"))
	assert.False(t, IsSupportedAsset(""))
}
