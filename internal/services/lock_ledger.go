package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
)

// PartitionDue splits locks into those releasable at now and those still locked
func PartitionDue(locks []models.LockRecord, now time.Time) (due, notDue []models.LockRecord, released decimal.Decimal) {
	released = decimal.Zero
	for _, lock := range locks {
		if lock.IsDue(now) {
			due = append(due, lock)
			released = released.Add(lock.Amount)
		} else {
			notDue = append(notDue, lock)
		}
	}
	return due, notDue, released
}

// release describes one batch of locks leaving a locked account
type release struct {
	eventType string
	keyPrefix string
	metadata  map[string]interface{}
}

// releaseResult is what a release wrote inside the account transaction
type releaseResult struct {
	lockIDs   []uuid.UUID
	entries   []*models.RewardLogEntry
	transfers []*models.PendingTransfer
	amount    decimal.Decimal
}

// releaseLocks moves the given locks of tx.Account into its available balance. It deletes
// the lock rows, writes one COMPLETED log entry per lock keyed by keyPrefix+lockID and
// queues an unlock transfer per lock when a wallet is registered.
func releaseLocks(ctx context.Context, tx *repository.AccountTx, locks []models.LockRecord, r release, now time.Time) (*releaseResult, error) {
	result := &releaseResult{amount: decimal.Zero}
	if len(locks) == 0 {
		return result, nil
	}

	for _, lock := range locks {
		result.lockIDs = append(result.lockIDs, lock.ID)
		result.amount = result.amount.Add(lock.Amount)
	}

	account := tx.Account
	if result.amount.GreaterThan(account.LockedBalance) {
		return nil, fmt.Errorf("releasing %s exceeds locked balance %s of user %s",
			result.amount, account.LockedBalance, account.ID)
	}

	deleted, err := tx.DeleteLocks(ctx, account.ID, result.lockIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete released locks: %w", err)
	}
	if deleted != int64(len(locks)) {
		return nil, fmt.Errorf("%w: expected to release %d locks, deleted %d", ErrConcurrencyConflict, len(locks), deleted)
	}

	account.LockedBalance = account.LockedBalance.Sub(result.amount)
	account.AvailableBalance = account.AvailableBalance.Add(result.amount)
	if err := tx.SaveBalances(ctx); err != nil {
		return nil, fmt.Errorf("failed to update balances: %w", err)
	}

	for _, lock := range locks {
		key := r.keyPrefix + lock.ID.String()
		meta := copyMetadata(r.metadata)
		meta["lock_id"] = lock.ID.String()
		meta["source"] = lock.Source
		meta["unlock_at"] = lock.UnlockAt.UTC().Format(time.RFC3339)

		entry := &models.RewardLogEntry{
			ID:              uuid.New(),
			UserID:          account.ID,
			EventType:       r.eventType,
			TotalAmount:     lock.Amount,
			ImmediateAmount: lock.Amount,
			LockedAmount:    decimal.Zero,
			IdempotencyKey:  &key,
			Status:          models.RewardStatusCompleted,
			Metadata:        meta,
			CreatedAt:       now,
			UpdatedAt:       now,
			CompletedAt:     &now,
		}
		if err := tx.CreateRewardLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to record release of lock %s: %w", lock.ID, err)
		}
		result.entries = append(result.entries, entry)

		if account.HasWallet() && lock.Amount.IsPositive() {
			transfer := models.NewPendingTransfer(account.ID, *account.WalletAddress, lock.Amount,
				models.TransferTypeUnlock, &entry.ID, now)
			if err := tx.CreateTransfer(ctx, transfer); err != nil {
				return nil, fmt.Errorf("failed to enqueue unlock transfer: %w", err)
			}
			result.transfers = append(result.transfers, transfer)
		}
	}

	if err := tx.RecordRelease(ctx, result.amount); err != nil {
		return nil, fmt.Errorf("failed to update system metrics: %w", err)
	}
	return result, nil
}
