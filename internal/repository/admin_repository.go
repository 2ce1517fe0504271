package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"reward-ledger/internal/models"
)

// GetAdminUser retrieves the admin role assignment of a user
func (r *Repository) GetAdminUser(ctx context.Context, userID string) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// UpsertAdminUser assigns role to userID
func (r *Repository) UpsertAdminUser(ctx context.Context, userID, role string) (*models.AdminUser, error) {
	admin := &models.AdminUser{UserID: userID, Role: role}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(admin).Error
	if err != nil {
		return nil, err
	}
	return r.GetAdminUser(ctx, userID)
}

// CreateAdminAction appends to the admin audit trail
func (r *Repository) CreateAdminAction(ctx context.Context, action *models.AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

// ListAdminActions returns the newest admin actions
func (r *Repository) ListAdminActions(ctx context.Context, limit int) ([]*models.AdminAction, error) {
	var actions []*models.AdminAction
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}
