package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressProvider is the boundary to the custody system that allocates
// on-chain-style receive addresses. Addresses are opaque to the ledger and
// generated exactly once per wallet.
type AddressProvider interface {
	NewAddress(ctx context.Context, asset string) (string, error)
}

// MockAddressProvider fabricates plausible-looking addresses without talking
// to any chain infrastructure.
type MockAddressProvider struct{}

func NewMockAddressProvider() *MockAddressProvider {
	return &MockAddressProvider{}
}

var addressPrefixes = map[string]string{
	"BTC":  "bc1q",
	"ETH":  "0x",
	"USDT": "0x",
	"USDC": "0x",
}

func (p *MockAddressProvider) NewAddress(ctx context.Context, asset string) (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate address entropy: %w", err)
	}
	prefix, ok := addressPrefixes[strings.ToUpper(asset)]
	if !ok {
		prefix = "addr_"
	}
	return prefix + hex.EncodeToString(buf), nil
}
