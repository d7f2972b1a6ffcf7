package domain

// Supported asset symbols. Balances are custodial bookkeeping entries,
// not on-chain outputs.
const (
	AssetBTC  = "BTC"
	AssetETH  = "ETH"
	AssetUSDT = "USDT"
	AssetUSDC = "USDC"
)

// SupportedAssets lists every asset a wallet may hold.
var SupportedAssets = []string{AssetBTC, AssetETH, AssetUSDT, AssetUSDC}

// IsSupportedAsset reports whether the symbol belongs to the fixed asset set.
func IsSupportedAsset(asset string) bool {
	switch asset {
	case AssetBTC, AssetETH, AssetUSDT, AssetUSDC:
		return true
	default:
		return false
	}
}

const (
	TxKindDeposit  = "DEPOSIT"
	TxKindWithdraw = "WITHDRAW"
	TxKindExchange = "EXCHANGE"
	TxKindInvest   = "INVEST"

	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusRejected  = "REJECTED"

	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCompleted = "COMPLETED"
	SubscriptionStatusCancelled = "CANCELLED"

	RoleClient = "client"
	RoleAdmin  = "admin"
)
