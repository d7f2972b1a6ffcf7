package service

import (
	"context"
	"fmt"

	"github.com/davidocha/coinvault/internal/observability"
	"go.uber.org/zap"
)

// IntegrityService verifies ledger-wide invariants that should hold at all
// times: no wallet below zero, and every asset's master wallet covering the
// principal escrowed by its active subscriptions. Violations are reported,
// not repaired.
type IntegrityService struct {
	store QueryStore
}

func NewIntegrityService(store QueryStore) *IntegrityService {
	return &IntegrityService{store: store}
}

// IntegrityReport lists the violations found by one check pass.
type IntegrityReport struct {
	NegativeWallets int64
	ShortfallAssets []string
}

func (r IntegrityReport) Clean() bool {
	return r.NegativeWallets == 0 && len(r.ShortfallAssets) == 0
}

// Check runs both invariant scans and records findings in the log and
// metrics.
func (s *IntegrityService) Check(ctx context.Context) (IntegrityReport, error) {
	var report IntegrityReport
	q := s.store.Queries()

	negatives, err := q.CountNegativeWallets(ctx)
	if err != nil {
		return report, fmt.Errorf("scan negative balances: %w", err)
	}
	report.NegativeWallets = negatives
	if negatives > 0 {
		observability.IncrementNegativeBalance()
		zap.L().Error("integrity violation: negative wallet balances",
			zap.Int64("count", negatives),
		)
	}

	escrow, err := q.MasterEscrowByAsset(ctx)
	if err != nil {
		return report, fmt.Errorf("scan master escrow: %w", err)
	}
	for _, row := range escrow {
		if row.MasterBalance.LessThan(row.ActivePrincipal) {
			report.ShortfallAssets = append(report.ShortfallAssets, row.Asset)
			observability.IncrementEscrowShortfall(row.Asset)
			zap.L().Error("integrity violation: master escrow below active principal",
				zap.String("asset", row.Asset),
				zap.String("master_balance", row.MasterBalance.String()),
				zap.String("active_principal", row.ActivePrincipal.String()),
			)
		}
	}

	pending, err := q.CountPendingWithdrawals(ctx)
	if err != nil {
		return report, fmt.Errorf("count pending withdrawals: %w", err)
	}
	observability.SetPendingWithdrawals(pending)

	return report, nil
}
