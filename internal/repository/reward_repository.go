package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reward-ledger/internal/models"
)

// CreateRewardLog inserts a log entry; a claimed idempotency key yields ErrDuplicateKey
func (r *Repository) CreateRewardLog(ctx context.Context, entry *models.RewardLogEntry) error {
	return classify(r.db.WithContext(ctx).Create(entry).Error)
}

// GetRewardLogByKey retrieves the entry that claimed an idempotency key
func (r *Repository) GetRewardLogByKey(ctx context.Context, key string) (*models.RewardLogEntry, error) {
	var entry models.RewardLogEntry
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetRewardLog retrieves an entry by ID
func (r *Repository) GetRewardLog(ctx context.Context, id uuid.UUID) (*models.RewardLogEntry, error) {
	var entry models.RewardLogEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CompleteRewardLog marks an entry COMPLETED
func (r *Repository) CompleteRewardLog(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.RewardLogEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.RewardStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}).Error
}

// AnnotateRewardLog merges values into an entry's metadata
func (r *Repository) AnnotateRewardLog(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	entry, err := r.GetRewardLog(ctx, id)
	if err != nil {
		return err
	}
	if entry.Metadata == nil {
		entry.Metadata = models.JSONB{}
	}
	for k, v := range values {
		entry.Metadata[k] = v
	}
	return r.db.WithContext(ctx).Model(&models.RewardLogEntry{}).
		Where("id = ?", id).
		Update("metadata", entry.Metadata).Error
}

// CountCompletedRewards counts a user's COMPLETED entries of eventType created in [from, to)
func (r *Repository) CountCompletedRewards(ctx context.Context, userID, eventType string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RewardLogEntry{}).
		Where("user_id = ? AND event_type = ? AND status = ?", userID, eventType, models.RewardStatusCompleted).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&count).Error
	return count, err
}

// ListRewardLogs returns a user's entries, newest first
func (r *Repository) ListRewardLogs(ctx context.Context, userID string, limit, offset int) ([]*models.RewardLogEntry, error) {
	var entries []*models.RewardLogEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
