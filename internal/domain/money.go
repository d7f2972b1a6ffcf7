package domain

import (
	"github.com/shopspring/decimal"
)

// Display/storage precision per asset. Stable assets settle at 6 decimal
// places, BTC and ETH at 8.
var assetPrecision = map[string]int32{
	AssetBTC:  8,
	AssetETH:  8,
	AssetUSDT: 6,
	AssetUSDC: 6,
}

const daysPerYear = 365

// Precision returns the decimal places used for amounts of the given asset.
func Precision(asset string) int32 {
	if p, ok := assetPrecision[asset]; ok {
		return p
	}
	return 8
}

// RoundForAsset truncates an amount to the asset's precision. Truncation
// rather than rounding keeps the ledger from ever crediting more than the
// exact computed value.
func RoundForAsset(amount decimal.Decimal, asset string) decimal.Decimal {
	return amount.Truncate(Precision(asset))
}

// DailyEarnings computes one day's yield for a principal at an annualized
// rate, using simple daily proration (rate / 365).
func DailyEarnings(principal, annualRate decimal.Decimal) decimal.Decimal {
	return principal.Mul(annualRate).Div(decimal.NewFromInt(daysPerYear))
}

// SplitCancellation splits a principal into refund and penalty for an early
// cancellation. Penalty is truncated to the asset precision and the refund
// absorbs the remainder, so refund + penalty always equals principal.
func SplitCancellation(principal, penaltyRate decimal.Decimal, asset string) (refund, penalty decimal.Decimal) {
	penalty = RoundForAsset(principal.Mul(penaltyRate), asset)
	refund = principal.Sub(penalty)
	return refund, penalty
}

// ExchangeQuote computes the fee retained on the source leg and the amount
// credited on the destination leg of an exchange. rate is destination units
// per source unit.
func ExchangeQuote(amount, feeRate, rate decimal.Decimal, toAsset string) (fee, credited decimal.Decimal) {
	fee = amount.Mul(feeRate)
	net := amount.Sub(fee)
	credited = RoundForAsset(net.Mul(rate), toAsset)
	return fee, credited
}
