package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/gateway"
	"github.com/davidocha/coinvault/internal/models"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService serves wallet reads and on-demand wallet creation. All
// balance mutation goes through the TransactionProcessor.
type WalletService struct {
	store     QueryStore
	addresses gateway.AddressProvider
}

func NewWalletService(store QueryStore, addresses gateway.AddressProvider) *WalletService {
	return &WalletService{store: store, addresses: addresses}
}

// GetWallet returns the owner's wallet for an asset.
func (s *WalletService) GetWallet(ctx context.Context, ownerID uuid.UUID, asset string) (*models.Wallet, error) {
	if !domain.IsSupportedAsset(asset) {
		return nil, models.ErrUnsupportedAsset
	}
	wallet, err := s.store.Queries().GetWallet(ctx, &ownerID, asset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return wallet, nil
}

// ListWallets returns all of the owner's wallets.
func (s *WalletService) ListWallets(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error) {
	return s.store.Queries().ListWalletsByOwner(ctx, ownerID)
}

// EnsureWallet returns the owner's wallet for an asset, creating it with a
// fresh receive address on first use.
func (s *WalletService) EnsureWallet(ctx context.Context, ownerID uuid.UUID, asset string) (*models.Wallet, error) {
	if !domain.IsSupportedAsset(asset) {
		return nil, models.ErrUnsupportedAsset
	}

	var wallet *models.Wallet
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		existing, err := q.GetWalletForUpdate(ctx, &ownerID, asset)
		if err == nil {
			wallet = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get wallet: %w", err)
		}

		address, err := s.addresses.NewAddress(ctx, asset)
		if err != nil {
			return fmt.Errorf("allocate receive address: %w", err)
		}
		wallet = &models.Wallet{
			ID:      uuid.New(),
			OwnerID: &ownerID,
			Asset:   asset,
			Balance: decimal.Zero,
			Address: address,
		}
		return q.CreateWallet(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// EnsureMasterWallets creates any missing master wallets at startup so fee
// and escrow credits never race wallet creation.
func (s *WalletService) EnsureMasterWallets(ctx context.Context) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		for _, asset := range domain.SupportedAssets {
			_, err := q.GetWalletForUpdate(ctx, nil, asset)
			if err == nil {
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("get master wallet %s: %w", asset, err)
			}

			address, err := s.addresses.NewAddress(ctx, asset)
			if err != nil {
				return fmt.Errorf("allocate master address %s: %w", asset, err)
			}
			w := &models.Wallet{
				ID:      uuid.New(),
				Asset:   asset,
				Balance: decimal.Zero,
				Address: address,
			}
			if err := q.CreateWallet(ctx, w); err != nil {
				return fmt.Errorf("create master wallet %s: %w", asset, err)
			}
			zap.L().Info("master wallet created", zap.String("asset", asset))
		}
		return nil
	})
}
