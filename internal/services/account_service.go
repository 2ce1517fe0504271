package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
)

// AccountService manages balances and settlement destinations of user accounts
type AccountService struct {
	repo   *repository.Repository
	ledger Ledger
}

func NewAccountService(deps Deps) *AccountService {
	return &AccountService{repo: deps.Repo, ledger: deps.Ledger}
}

// Balance is a user's spendable and locked position
type Balance struct {
	UserID           string              `json:"user_id"`
	AvailableBalance string              `json:"available_balance"`
	LockedBalance    string              `json:"locked_balance"`
	TotalEarned      string              `json:"total_earned"`
	WalletAddress    *string             `json:"wallet_address,omitempty"`
	Locks            []models.LockRecord `json:"locks"`
}

// RegisterWallet sets the destination address transfers of userID are sent to.
// The account is created when the user has not been rewarded yet.
func (s *AccountService) RegisterWallet(ctx context.Context, userID, address string) (*models.UserAccount, error) {
	address = strings.TrimSpace(address)
	if strings.TrimSpace(userID) == "" {
		return nil, newValidationError("user_id", "must not be empty")
	}
	if address == "" {
		return nil, newValidationError("wallet_address", "must not be empty")
	}
	if s.ledger != nil {
		if err := s.ledger.ValidateAddress(address); err != nil {
			return nil, newValidationError("wallet_address", err.Error())
		}
	}

	var account *models.UserAccount
	err := s.repo.WithTransaction(ctx, userID, true, func(tx *repository.AccountTx) error {
		if err := tx.SetWalletAddress(ctx, userID, address); err != nil {
			return err
		}
		if tx.Created {
			if err := tx.RecordNewUser(ctx); err != nil {
				return fmt.Errorf("failed to count new user: %w", err)
			}
		}
		tx.Account.WalletAddress = &address
		account = tx.Account
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		return nil, ErrWalletInUse
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user_id": userID, "wallet": address}).Info("Wallet registered")
	return account, nil
}

// GetBalance returns the balances and outstanding locks of a user
func (s *AccountService) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	account, err := s.repo.GetAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	locks, err := s.repo.ListLocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		UserID:           account.ID,
		AvailableBalance: account.AvailableBalance.StringFixed(8),
		LockedBalance:    account.LockedBalance.StringFixed(8),
		TotalEarned:      account.TotalEarned.StringFixed(8),
		WalletAddress:    account.WalletAddress,
		Locks:            locks,
	}, nil
}

// ListTransfers returns the user's queued and settled transfers
func (s *AccountService) ListTransfers(ctx context.Context, userID string, limit int) ([]*models.PendingTransfer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListTransfersByUser(ctx, userID, limit)
}
