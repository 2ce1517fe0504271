package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"reward-ledger/internal/models"
)

// TransferAggregate is the count and amount of transfers in one status
type TransferAggregate struct {
	Status models.TransferStatus
	Count  int64
	Amount decimal.Decimal
}

// CreateTransfer enqueues a transfer
func (r *Repository) CreateTransfer(ctx context.Context, transfer *models.PendingTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

// GetTransfer retrieves a transfer by ID
func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (*models.PendingTransfer, error) {
	var transfer models.PendingTransfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// ListPendingTransfers returns the oldest PENDING transfers that still have attempts left in their round
func (r *Repository) ListPendingTransfers(ctx context.Context, limit int) ([]*models.PendingTransfer, error) {
	var transfers []*models.PendingTransfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempt_count < ? * (retry_round + 1)", models.TransferStatusPending, models.MaxTransferAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// ListTransfersByUser returns a user's transfers, newest first
func (r *Repository) ListTransfersByUser(ctx context.Context, userID string, limit int) ([]*models.PendingTransfer, error) {
	var transfers []*models.PendingTransfer
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// ClaimTransfer moves a PENDING transfer to IN_FLIGHT.
// It reports false when another worker claimed or settled the row first.
func (r *Repository) ClaimTransfer(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Where("id = ? AND status = ?", id, models.TransferStatusPending).
		Updates(map[string]interface{}{
			"status":     models.TransferStatusInFlight,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SaveTransfer writes the outcome of a settlement attempt on a claimed transfer
func (r *Repository) SaveTransfer(ctx context.Context, t *models.PendingTransfer) error {
	res := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Where("id = ? AND status = ?", t.ID, models.TransferStatusInFlight).
		Updates(map[string]interface{}{
			"status":         t.Status,
			"attempt_count":  t.AttemptCount,
			"transaction_id": t.TransactionID,
			"last_error":     t.LastError,
			"completed_at":   t.CompletedAt,
			"updated_at":     t.UpdatedAt,
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTransferNotClaimed
	}
	return nil
}

// CountStaleInFlight counts IN_FLIGHT transfers not touched since cutoff
func (r *Repository) CountStaleInFlight(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Where("status = ? AND updated_at < ?", models.TransferStatusInFlight, cutoff).
		Count(&n).Error
	return n, err
}

// TransferStats aggregates the queue by status
func (r *Repository) TransferStats(ctx context.Context) ([]TransferAggregate, error) {
	var rows []TransferAggregate
	err := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ResetFailedTransfers moves up to limit FAILED transfers back to PENDING in a new retry round.
// The attempt count is kept; the next round allows MaxTransferAttempts more.
func (r *Repository) ResetFailedTransfers(ctx context.Context, limit int, now time.Time) (int64, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Where("status = ?", models.TransferStatusFailed).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	res := r.db.WithContext(ctx).Model(&models.PendingTransfer{}).
		Where("id IN ? AND status = ?", ids, models.TransferStatusFailed).
		Updates(map[string]interface{}{
			"status":      models.TransferStatusPending,
			"retry_round": gorm.Expr("retry_round + 1"),
			"last_error":  "",
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

// DeleteSettledTransfersBefore removes COMPLETED and FAILED transfers last touched before cutoff
func (r *Repository) DeleteSettledTransfersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.TransferStatus{models.TransferStatusCompleted, models.TransferStatusFailed}, cutoff).
		Delete(&models.PendingTransfer{})
	return res.RowsAffected, res.Error
}
