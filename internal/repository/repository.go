package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reward-ledger/internal/models"
)

var (
	// ErrConflict marks transaction contention that is safe to retry
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicateKey marks a rejected insert of an already claimed unique key
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrTransferNotClaimed marks a settlement write for a row this worker does not hold IN_FLIGHT
	ErrTransferNotClaimed = errors.New("transfer is not claimed")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Repository{db: db})
	})
	return classify(err)
}

// AccountTx is a transaction holding the row lock of one user account
type AccountTx struct {
	*Repository
	Account *models.UserAccount
	// Created is set when the account row was inserted by this transaction
	Created bool
}

// WithTransaction runs fn in a transaction scoped to userID's account row.
// The row is read FOR UPDATE so concurrent mutations of the same user serialize.
// When create is false a missing account returns gorm.ErrRecordNotFound.
func (r *Repository) WithTransaction(ctx context.Context, userID string, create bool, fn func(tx *AccountTx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		atx := &AccountTx{Repository: &Repository{db: db}}

		if create {
			now := time.Now().UTC()
			seed := &models.UserAccount{ID: userID, CreatedAt: now, UpdatedAt: now}
			res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed)
			if res.Error != nil {
				return res.Error
			}
			atx.Created = res.RowsAffected > 0
		}

		var account models.UserAccount
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			First(&account).Error; err != nil {
			return err
		}
		atx.Account = &account

		return fn(atx)
	})
	return classify(err)
}

// SaveBalances writes the in-memory balances of the locked account
func (tx *AccountTx) SaveBalances(ctx context.Context) error {
	return tx.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", tx.Account.ID).
		Updates(map[string]interface{}{
			"available_balance": tx.Account.AvailableBalance,
			"locked_balance":    tx.Account.LockedBalance,
			"total_earned":      tx.Account.TotalEarned,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// classify maps driver errors onto ErrConflict and ErrDuplicateKey
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsDuplicate(err):
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case isConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// IsDuplicate reports whether err is a unique constraint violation
func IsDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicateKey) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
