package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reward-ledger/internal/models"
)

func (r *Repository) ensureSystemMetrics(ctx context.Context) error {
	row := &models.SystemMetrics{ID: models.SystemMetricsID, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// GetSystemMetrics returns the aggregate row, zero-valued when nothing was recorded yet
func (r *Repository) GetSystemMetrics(ctx context.Context) (*models.SystemMetrics, error) {
	var m models.SystemMetrics
	err := r.db.WithContext(ctx).Where("id = ?", models.SystemMetricsID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SystemMetrics{ID: models.SystemMetricsID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordGrant adds one grant to the aggregate and per event type counters
func (r *Repository) RecordGrant(ctx context.Context, eventType string, amount, locked decimal.Decimal, newUser bool) error {
	if err := r.ensureSystemMetrics(ctx); err != nil {
		return err
	}

	newUsers := 0
	if newUser {
		newUsers = 1
	}
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.SystemMetrics{}).
		Where("id = ?", models.SystemMetricsID).
		Updates(map[string]interface{}{
			"total_users":       gorm.Expr("total_users + ?", newUsers),
			"total_distributed": gorm.Expr("total_distributed + ?", amount),
			"total_locked":      gorm.Expr("total_locked + ?", locked),
			"updated_at":        now,
		}).Error
	if err != nil {
		return err
	}

	row := &models.EventTypeMetric{
		EventType:   eventType,
		Count:       1,
		TotalAmount: amount,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":        gorm.Expr("event_type_metrics.count + 1"),
			"total_amount": gorm.Expr("event_type_metrics.total_amount + ?", amount),
			"updated_at":   now,
		}),
	}).Create(row).Error
}

// RecordNewUser counts an account created outside a grant
func (r *Repository) RecordNewUser(ctx context.Context) error {
	if err := r.ensureSystemMetrics(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SystemMetrics{}).
		Where("id = ?", models.SystemMetricsID).
		Updates(map[string]interface{}{
			"total_users": gorm.Expr("total_users + 1"),
			"updated_at":  time.Now().UTC(),
		}).Error
}

// RecordRelease removes released amounts from the locked total
func (r *Repository) RecordRelease(ctx context.Context, released decimal.Decimal) error {
	if err := r.ensureSystemMetrics(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SystemMetrics{}).
		Where("id = ?", models.SystemMetricsID).
		Updates(map[string]interface{}{
			"total_locked": gorm.Expr("total_locked - ?", released),
			"updated_at":   time.Now().UTC(),
		}).Error
}

// RecordUnlockRun stamps the time of the latest sweep
func (r *Repository) RecordUnlockRun(ctx context.Context, at time.Time) error {
	if err := r.ensureSystemMetrics(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SystemMetrics{}).
		Where("id = ?", models.SystemMetricsID).
		Updates(map[string]interface{}{
			"last_unlock_run": at,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// SetRewardsPaused stores the ledger-wide pause flag
func (r *Repository) SetRewardsPaused(ctx context.Context, paused bool) error {
	if err := r.ensureSystemMetrics(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.SystemMetrics{}).
		Where("id = ?", models.SystemMetricsID).
		Updates(map[string]interface{}{
			"rewards_paused": paused,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// ListEventTypeMetrics returns the per event type counters
func (r *Repository) ListEventTypeMetrics(ctx context.Context) ([]models.EventTypeMetric, error) {
	var rows []models.EventTypeMetric
	if err := r.db.WithContext(ctx).Order("event_type ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
