package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/models"
)

func signupLock(t *testing.T, h *ledgerHarness, userID string) models.LockRecord {
	t.Helper()
	_, err := h.rewards.ApplyReward(context.Background(), userID, "signup_bonus", nil, "signup-"+userID)
	require.NoError(t, err)
	locks := h.locks(t, userID)
	require.Len(t, locks, 1)
	return locks[0]
}

func TestForceUnlockRequiresAdmin(t *testing.T) {
	h := newLedgerHarness(t)
	lock := signupLock(t, h, "user-1")

	_, err := h.admin.ForceUnlock(context.Background(), "nobody", "user-1", lock.ID, "support ticket")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	h.grantAdmin(t, "analyst", models.RoleAnalyst)
	_, err = h.admin.ForceUnlock(context.Background(), "analyst", "user-1", lock.ID, "support ticket")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Len(t, h.locks(t, "user-1"), 1)
	requireDecimal(t, "350", h.account(t, "user-1").LockedBalance)
}

func TestForceUnlockReleasesLock(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "ops", models.RoleLedgerAdmin)

	_, err := h.accounts.RegisterWallet(ctx, "user-1", testWallet)
	require.NoError(t, err)
	lock := signupLock(t, h, "user-1")

	entry, err := h.admin.ForceUnlock(ctx, "ops", "user-1", lock.ID, "  court order  ")
	require.NoError(t, err)

	assert.Equal(t, models.EventTypeAdminForceUnlock, entry.EventType)
	assert.Equal(t, models.RewardStatusCompleted, entry.Status)
	assert.Equal(t, models.ForceUnlockKeyPrefix+lock.ID.String(), entry.Key())
	assert.Equal(t, "ops", entry.Metadata["admin_id"])
	assert.Equal(t, "court order", entry.Metadata["reason"])
	requireDecimal(t, "350", entry.TotalAmount)

	account := h.account(t, "user-1")
	requireDecimal(t, "700", account.AvailableBalance)
	requireDecimal(t, "0", account.LockedBalance)
	assert.Empty(t, h.locks(t, "user-1"))

	var unlocks []models.PendingTransfer
	require.NoError(t, h.db.Where("transfer_type = ?", models.TransferTypeUnlock).Find(&unlocks).Error)
	require.Len(t, unlocks, 1)
	requireDecimal(t, "350", unlocks[0].Amount)

	actions, err := h.admin.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.AdminActionForceUnlock, actions[0].Action)
	assert.Equal(t, "user-1", actions[0].TargetUserID)
	assert.Equal(t, lock.ID.String(), actions[0].ResourceID)
	assert.Equal(t, "court order", actions[0].Reason)

	assert.Contains(t, h.publisher.topics(), audit.TopicRewardForceUnlock)

	sys, err := h.repo.GetSystemMetrics(ctx)
	require.NoError(t, err)
	requireDecimal(t, "0", sys.TotalLocked)
}

func TestForceUnlockUnknownOrReleasedLock(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "root", models.RoleSuperAdmin)
	lock := signupLock(t, h, "user-1")

	_, err := h.admin.ForceUnlock(ctx, "root", "user-1", uuid.New(), "typo")
	assert.ErrorIs(t, err, ErrLockNotFound)

	_, err = h.admin.ForceUnlock(ctx, "root", "user-2", lock.ID, "wrong user")
	assert.ErrorIs(t, err, ErrLockNotFound)

	_, err = h.admin.ForceUnlock(ctx, "root", "user-1", lock.ID, "first")
	require.NoError(t, err)
	_, err = h.admin.ForceUnlock(ctx, "root", "user-1", lock.ID, "second")
	assert.ErrorIs(t, err, ErrLockNotFound)

	requireDecimal(t, "700", h.account(t, "user-1").AvailableBalance)

	actions, err := h.admin.RecentActions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestForceUnlockRequiresReason(t *testing.T) {
	h := newLedgerHarness(t)
	h.grantAdmin(t, "root", models.RoleSuperAdmin)
	lock := signupLock(t, h, "user-1")

	_, err := h.admin.ForceUnlock(context.Background(), "root", "user-1", lock.ID, "   ")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "reason", verr.Field)
	assert.Len(t, h.locks(t, "user-1"), 1)
}

func TestForceUnlockThenSweepSkipsLock(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "root", models.RoleSuperAdmin)
	lock := signupLock(t, h, "user-1")

	_, err := h.admin.ForceUnlock(ctx, "root", "user-1", lock.ID, "early release")
	require.NoError(t, err)

	h.clock.Set(models.UnlockAt(testStart))
	report, err := h.unlocks.ProcessUnlocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.LocksReleased)
	requireDecimal(t, "700", h.account(t, "user-1").AvailableBalance)
}

func TestSetPaused(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "ops", models.RoleLedgerAdmin)
	h.grantAdmin(t, "analyst", models.RoleAnalyst)

	isPaused := func() bool {
		paused, err := h.rewards.IsPaused(ctx)
		require.NoError(t, err)
		return paused
	}

	assert.ErrorIs(t, h.admin.SetPaused(ctx, "analyst", true, "nope"), ErrPermissionDenied)
	assert.False(t, isPaused())

	require.NoError(t, h.admin.SetPaused(ctx, "ops", true, "incident"))
	assert.True(t, isPaused())

	_, err := h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	assert.ErrorIs(t, err, ErrSystemPaused)

	require.NoError(t, h.admin.SetPaused(ctx, "ops", false, "resolved"))
	_, err = h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)

	actions, err := h.admin.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	var names []string
	for _, a := range actions {
		names = append(names, a.Action)
	}
	assert.ElementsMatch(t, []string{models.AdminActionPause, models.AdminActionResume}, names)
}

func TestSetPausedSurvivesRestart(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "ops", models.RoleLedgerAdmin)
	require.NoError(t, h.admin.SetPaused(ctx, "ops", true, "incident"))

	// a fresh instance over the same database, started without the env override
	restarted := NewRewardService(Deps{Repo: h.repo, Configs: h.configs, Clock: h.clock}, false)
	paused, err := restarted.IsPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	_, err = restarted.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.ErrorIs(t, err, ErrSystemPaused)

	sys, err := h.repo.GetSystemMetrics(ctx)
	require.NoError(t, err)
	assert.True(t, sys.RewardsPaused)
}

func TestSetPausedRollsBackWithoutAuditRecord(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "ops", models.RoleLedgerAdmin)

	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_admin_action", func(db *gorm.DB) {
		if db.Statement.Table == (models.AdminAction{}).TableName() {
			db.AddError(errors.New("audit table unavailable"))
		}
	}))

	require.Error(t, h.admin.SetPaused(ctx, "ops", true, "incident"))

	paused, err := h.rewards.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused, "the flag is not stored without its audit record")
}

func TestGrantRole(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	h.grantAdmin(t, "root", models.RoleSuperAdmin)
	h.grantAdmin(t, "ops", models.RoleLedgerAdmin)

	_, err := h.admin.GrantRole(ctx, "ops", "someone", models.RoleLedgerAdmin)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = h.admin.GrantRole(ctx, "root", "someone", "OWNER")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	admin, err := h.admin.GrantRole(ctx, "root", "someone", models.RoleAnalyst)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnalyst, admin.Role)
	assert.True(t, h.admin.IsAdmin(ctx, "someone"))

	admin, err = h.admin.GrantRole(ctx, "root", "someone", models.RoleLedgerAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLedgerAdmin, admin.Role)

	stored, err := h.repo.GetAdminUser(ctx, "someone")
	require.NoError(t, err)
	assert.Equal(t, models.RoleLedgerAdmin, stored.Role)
}

func TestGetSystemStats(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.accounts.RegisterWallet(ctx, "user-1", testWallet)
	require.NoError(t, err)
	_, err = h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)
	_, err = h.rewards.ApplyReward(ctx, "user-1", "referral", nil, "referral-1")
	require.NoError(t, err)

	stats, err := h.admin.GetSystemStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Metrics.TotalUsers)
	requireDecimal(t, "840", stats.Metrics.TotalDistributed)
	requireDecimal(t, "420", stats.Metrics.TotalLocked)
	assert.Len(t, stats.EventTypes, 2)
	assert.Equal(t, int64(2), stats.Queue.Pending.Count)
	requireDecimal(t, "420", stats.Queue.Pending.Amount)
	assert.False(t, stats.Paused)
}
