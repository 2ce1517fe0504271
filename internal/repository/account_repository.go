package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reward-ledger/internal/models"
)

// GetAccount retrieves an account without its locks
func (r *Repository) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	var account models.UserAccount
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SetWalletAddress stores the settlement destination of an account
func (r *Repository) SetWalletAddress(ctx context.Context, userID, address string) error {
	err := r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"wallet_address": address,
			"updated_at":     time.Now().UTC(),
		}).Error
	return classify(err)
}

// ListAccountsWithDueLocks returns up to limit accounts holding a locked balance with
// at least one lock due at now, oldest accounts first
func (r *Repository) ListAccountsWithDueLocks(ctx context.Context, now time.Time, limit int) ([]*models.UserAccount, error) {
	var accounts []*models.UserAccount
	due := r.db.Model(&models.LockRecord{}).Select("user_id").Where("unlock_at <= ?", now)
	err := r.db.WithContext(ctx).
		Where("locked_balance > 0").
		Where("id IN (?)", due).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateLock inserts a lock record
func (r *Repository) CreateLock(ctx context.Context, lock *models.LockRecord) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

// ListLocks returns a user's locks ordered by release date
func (r *Repository) ListLocks(ctx context.Context, userID string) ([]models.LockRecord, error) {
	var locks []models.LockRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlock_at ASC").
		Find(&locks).Error
	if err != nil {
		return nil, err
	}
	return locks, nil
}

// GetLock retrieves one lock belonging to userID
func (r *Repository) GetLock(ctx context.Context, userID string, lockID uuid.UUID) (*models.LockRecord, error) {
	var lock models.LockRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", lockID, userID).
		First(&lock).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// DeleteLocks removes released locks and returns how many rows were deleted
func (r *Repository) DeleteLocks(ctx context.Context, userID string, lockIDs []uuid.UUID) (int64, error) {
	if len(lockIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, lockIDs).
		Delete(&models.LockRecord{})
	return res.RowsAffected, res.Error
}
