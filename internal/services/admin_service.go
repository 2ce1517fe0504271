package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
)

type AdminService struct {
	repo       *repository.Repository
	publisher  audit.Publisher
	metrics    *metrics.LedgerMetrics
	clock      Clock
	rewards    *RewardService
	settlement *SettlementService
	mu         sync.Mutex
}

func NewAdminService(deps Deps, rewards *RewardService, settlement *SettlementService) *AdminService {
	deps = deps.withDefaults()
	return &AdminService{
		repo:       deps.Repo,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		rewards:    rewards,
		settlement: settlement,
	}
}

// IsAdmin checks if a user holds any admin role
func (s *AdminService) IsAdmin(ctx context.Context, userID string) bool {
	_, err := s.repo.GetAdminUser(ctx, userID)
	return err == nil
}

// requireRole loads the admin and checks it holds one of roles
func (s *AdminService) requireRole(ctx context.Context, adminID string, roles ...string) (*models.AdminUser, error) {
	admin, err := s.repo.GetAdminUser(ctx, adminID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	for _, role := range roles {
		if admin.Role == role {
			return admin, nil
		}
	}
	return nil, ErrPermissionDenied
}

// RequireOperator fails with ErrPermissionDenied unless adminID may operate the ledger
func (s *AdminService) RequireOperator(ctx context.Context, adminID string) error {
	_, err := s.requireRole(ctx, adminID, models.RoleSuperAdmin, models.RoleLedgerAdmin)
	return err
}

// ForceUnlock releases one lock ahead of its unlock date. The release and the admin
// action that authorized it are written in the same transaction.
func (s *AdminService) ForceUnlock(ctx context.Context, adminID, userID string, lockID uuid.UUID, reason string) (*models.RewardLogEntry, error) {
	admin, err := s.requireRole(ctx, adminID, models.RoleSuperAdmin, models.RoleLedgerAdmin)
	if err != nil {
		return nil, err
	}
	if !admin.CanUnlock() {
		return nil, ErrPermissionDenied
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError("reason", "must not be empty")
	}

	var result *releaseResult
	now := s.clock.Now()
	err = s.repo.WithTransaction(ctx, userID, false, func(tx *repository.AccountTx) error {
		lock, err := tx.GetLock(ctx, userID, lockID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLockNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load lock: %w", err)
		}

		result, err = releaseLocks(ctx, tx, []models.LockRecord{*lock}, release{
			eventType: models.EventTypeAdminForceUnlock,
			keyPrefix: models.ForceUnlockKeyPrefix,
			metadata: map[string]interface{}{
				"trigger":  "admin",
				"admin_id": adminID,
				"reason":   reason,
			},
		}, now)
		if err != nil {
			return err
		}

		return tx.CreateAdminAction(ctx, &models.AdminAction{
			AdminID:      adminID,
			Action:       models.AdminActionForceUnlock,
			TargetUserID: userID,
			ResourceID:   lockID.String(),
			Reason:       reason,
			Details: models.JSONB{
				"amount":       lock.Amount.String(),
				"unlock_at":    lock.UnlockAt,
				"reward_log":   result.entries[0].ID.String(),
				"transfer_ids": transferIDs(result.transfers),
			},
			CreatedAt: now,
		})
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrLockNotFound
	case errors.Is(err, repository.ErrDuplicateKey):
		return nil, ErrLockNotFound
	case err != nil:
		return nil, err
	}

	s.metrics.RecordRelease("admin", 1, result.amount)
	publishBestEffort(ctx, s.publisher, audit.TopicRewardForceUnlock, audit.UnlockEvent{
		UserID:     userID,
		LockIDs:    result.lockIDs,
		Amount:     result.amount,
		Trigger:    "admin",
		AdminID:    adminID,
		Reason:     reason,
		OccurredAt: now,
	})

	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"lock_id":  lockID.String(),
		"amount":   result.amount.String(),
	}).Warn("Lock force-unlocked by admin")

	return result.entries[0], nil
}

// SetPaused stops or resumes reward distribution
func (s *AdminService) SetPaused(ctx context.Context, adminID string, paused bool, reason string) error {
	if _, err := s.requireRole(ctx, adminID, models.RoleSuperAdmin, models.RoleLedgerAdmin); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	action := models.AdminActionResume
	if paused {
		action = models.AdminActionPause
	}
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.SetRewardsPaused(ctx, paused); err != nil {
			return fmt.Errorf("failed to store pause flag: %w", err)
		}
		return s.logAction(ctx, tx, adminID, action, "", "", reason, nil)
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"admin_id": adminID, "paused": paused}).Warn("Reward distribution state changed")
	return nil
}

// GrantRole assigns an admin role. Only super admins may grant roles.
func (s *AdminService) GrantRole(ctx context.Context, adminID, userID, role string) (*models.AdminUser, error) {
	if _, err := s.requireRole(ctx, adminID, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	switch role {
	case models.RoleSuperAdmin, models.RoleLedgerAdmin, models.RoleAnalyst:
	default:
		return nil, newValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
	if strings.TrimSpace(userID) == "" {
		return nil, newValidationError("user_id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	admin, err := s.repo.UpsertAdminUser(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}
	if err := s.logAction(ctx, s.repo, adminID, models.AdminActionGrantRole, userID, "", "", models.JSONB{"role": role}); err != nil {
		return nil, err
	}

	log.Printf("User %s granted %s by %s", userID, role, adminID)
	return admin, nil
}

// RetryFailedTransfers requeues terminally failed transfers on an admin's behalf
func (s *AdminService) RetryFailedTransfers(ctx context.Context, adminID string, limit int) (int64, error) {
	if _, err := s.requireRole(ctx, adminID, models.RoleSuperAdmin, models.RoleLedgerAdmin); err != nil {
		return 0, err
	}
	n, err := s.settlement.RetryFailedTransfers(ctx, limit)
	if err != nil {
		return 0, err
	}
	if err := s.logAction(ctx, s.repo, adminID, models.AdminActionRetry, "", "", "", models.JSONB{"requeued": n}); err != nil {
		return n, err
	}
	return n, nil
}

// ListLocks returns a user's outstanding locks
func (s *AdminService) ListLocks(ctx context.Context, userID string) ([]models.LockRecord, error) {
	return s.repo.ListLocks(ctx, userID)
}

// RecentActions returns the newest entries of the admin audit trail
func (s *AdminService) RecentActions(ctx context.Context, limit int) ([]*models.AdminAction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAdminActions(ctx, limit)
}

// SystemStats is the ledger-wide overview shown to admins
type SystemStats struct {
	Metrics    *models.SystemMetrics    `json:"metrics"`
	EventTypes []models.EventTypeMetric `json:"event_types"`
	Queue      *QueueStats              `json:"queue"`
	Paused     bool                     `json:"paused"`
}

// GetSystemStats aggregates metrics and queue state
func (s *AdminService) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	sys, err := s.repo.GetSystemMetrics(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEventTypeMetrics(ctx)
	if err != nil {
		return nil, err
	}
	queue, err := s.settlement.GetQueueStats(ctx)
	if err != nil {
		return nil, err
	}
	paused, err := s.rewards.IsPaused(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemStats{
		Metrics:    sys,
		EventTypes: events,
		Queue:      queue,
		Paused:     paused,
	}, nil
}

func (s *AdminService) logAction(ctx context.Context, repo *repository.Repository, adminID, action, targetUserID, resourceID, reason string, details models.JSONB) error {
	err := repo.CreateAdminAction(ctx, &models.AdminAction{
		AdminID:      adminID,
		Action:       action,
		TargetUserID: targetUserID,
		ResourceID:   resourceID,
		Reason:       reason,
		Details:      details,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record admin action: %w", err)
	}
	return nil
}

func transferIDs(transfers []*models.PendingTransfer) []string {
	out := make([]string, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, t.ID.String())
	}
	return out
}
