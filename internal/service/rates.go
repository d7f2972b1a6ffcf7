package service

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/shopspring/decimal"
)

// RateSource supplies conversion rates for exchanges. The ledger core never
// fetches or caches market data itself; the surrounding application provides
// rates at submission time, falling back to this collaborator when the client
// omits one.
type RateSource interface {
	// GetRate returns destination units per source unit.
	GetRate(ctx context.Context, fromAsset, toAsset string) (decimal.Decimal, error)
}

// StaticRateSource serves fixed reference rates, USD-anchored. Intended for
// development and tests.
type StaticRateSource struct {
	usdValues map[string]decimal.Decimal
}

func NewStaticRateSource() *StaticRateSource {
	return &StaticRateSource{
		usdValues: map[string]decimal.Decimal{
			domain.AssetBTC:  decimal.NewFromInt(60000),
			domain.AssetETH:  decimal.NewFromInt(2500),
			domain.AssetUSDT: decimal.NewFromInt(1),
			domain.AssetUSDC: decimal.NewFromInt(1),
		},
	}
}

// GetRate derives a cross rate from the USD anchors: rate = from / to.
func (s *StaticRateSource) GetRate(ctx context.Context, fromAsset, toAsset string) (decimal.Decimal, error) {
	if fromAsset == toAsset {
		return decimal.NewFromInt(1), nil
	}
	fromUSD, ok := s.usdValues[fromAsset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for asset %s", fromAsset)
	}
	toUSD, ok := s.usdValues[toAsset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for asset %s", toAsset)
	}
	return fromUSD.Div(toUSD), nil
}
