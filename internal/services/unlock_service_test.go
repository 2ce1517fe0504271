package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/models"
)

func TestPartitionDue(t *testing.T) {
	now := testStart
	locks := []models.LockRecord{
		{ID: uuid.New(), Amount: decimal.NewFromInt(10), UnlockAt: now.Add(-time.Hour)},
		{ID: uuid.New(), Amount: decimal.NewFromInt(5), UnlockAt: now},
		{ID: uuid.New(), Amount: decimal.NewFromInt(7), UnlockAt: now.Add(time.Second)},
	}

	due, notDue, released := PartitionDue(locks, now)

	assert.Len(t, due, 2)
	assert.Len(t, notDue, 1)
	assert.Equal(t, locks[2].ID, notDue[0].ID)
	requireDecimal(t, "15", released)
}

func TestPartitionDueEmpty(t *testing.T) {
	due, notDue, released := PartitionDue(nil, testStart)
	assert.Empty(t, due)
	assert.Empty(t, notDue)
	assert.True(t, released.IsZero())
}

// grantTwoLocks leaves user-1 with a signup lock at testStart and a check-in lock one day later
func grantTwoLocks(t *testing.T, h *ledgerHarness) {
	t.Helper()
	ctx := context.Background()
	_, err := h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)
	_, err = h.rewards.ApplyReward(ctx, "user-1", "daily_checkin", nil, "checkin-1")
	require.NoError(t, err)
}

func TestProcessUnlocksReleasesOnlyDueLocks(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	grantTwoLocks(t, h)

	locksBefore := h.locks(t, "user-1")
	require.Len(t, locksBefore, 2)

	h.clock.Set(models.UnlockAt(testStart))
	report, err := h.unlocks.ProcessUnlocks(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.UsersScanned)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Equal(t, 1, report.LocksReleased)
	assert.Zero(t, report.Errors)
	requireDecimal(t, "350", report.TotalUnlocked)

	account := h.account(t, "user-1")
	requireDecimal(t, "707", account.AvailableBalance)
	requireDecimal(t, "7", account.LockedBalance)

	remaining := h.locks(t, "user-1")
	require.Len(t, remaining, 1)
	assert.Equal(t, "daily_checkin", remaining[0].Source)

	var signupLock models.LockRecord
	for _, l := range locksBefore {
		if l.Source == "signup_bonus" {
			signupLock = l
		}
	}
	entry, err := h.repo.GetRewardLogByKey(ctx, models.UnlockKeyPrefix+signupLock.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeTokenUnlock, entry.EventType)
	assert.Equal(t, models.RewardStatusCompleted, entry.Status)
	requireDecimal(t, "350", entry.TotalAmount)
	assert.True(t, entry.ImmediateAmount.Add(entry.LockedAmount).Equal(entry.TotalAmount))

	sys, err := h.repo.GetSystemMetrics(ctx)
	require.NoError(t, err)
	requireDecimal(t, "7", sys.TotalLocked)
	require.NotNil(t, sys.LastUnlockRun)
	assert.WithinDuration(t, models.UnlockAt(testStart), *sys.LastUnlockRun, time.Second)

	assert.Contains(t, h.publisher.topics(), audit.TopicRewardUnlocked)
}

func TestProcessUnlocksNothingBeforeUnlockDate(t *testing.T) {
	h := newLedgerHarness(t)
	grantTwoLocks(t, h)

	h.clock.Set(models.UnlockAt(testStart).Add(-time.Second))
	report, err := h.unlocks.ProcessUnlocks(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.UsersScanned)
	assert.Zero(t, report.LocksReleased)
	assert.Len(t, h.locks(t, "user-1"), 2)
	requireDecimal(t, "357", h.account(t, "user-1").LockedBalance)
}

func TestProcessUnlocksTwiceReleasesOnce(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	grantTwoLocks(t, h)

	h.clock.Set(models.UnlockAt(testStart).Add(48 * time.Hour))
	first, err := h.unlocks.ProcessUnlocks(ctx)
	require.NoError(t, err)
	second, err := h.unlocks.ProcessUnlocks(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, first.LocksReleased)
	requireDecimal(t, "357", first.TotalUnlocked)
	assert.Zero(t, second.UsersScanned)
	assert.Zero(t, second.LocksReleased)

	account := h.account(t, "user-1")
	requireDecimal(t, "714", account.AvailableBalance)
	requireDecimal(t, "0", account.LockedBalance)

	var unlockEntries int64
	require.NoError(t, h.db.Model(&models.RewardLogEntry{}).
		Where("event_type = ?", models.EventTypeTokenUnlock).
		Count(&unlockEntries).Error)
	assert.Equal(t, int64(2), unlockEntries)
}

func TestProcessUnlocksEnqueuesUnlockTransfers(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.accounts.RegisterWallet(ctx, "user-1", testWallet)
	require.NoError(t, err)
	grantTwoLocks(t, h)

	h.clock.Set(models.UnlockAt(testStart))
	_, err = h.unlocks.ProcessUnlocks(ctx)
	require.NoError(t, err)

	var unlocks []models.PendingTransfer
	require.NoError(t, h.db.Where("transfer_type = ?", models.TransferTypeUnlock).Find(&unlocks).Error)
	require.Len(t, unlocks, 1)
	requireDecimal(t, "350", unlocks[0].Amount)
	assert.Equal(t, testWallet, unlocks[0].DestinationAddress)
	require.NotNil(t, unlocks[0].RewardLogID)
}

func TestProcessUnlocksBatchSize(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	for _, user := range []string{"user-a", "user-b", "user-c"} {
		_, err := h.rewards.ApplyReward(ctx, user, "signup_bonus", nil, "signup-"+user)
		require.NoError(t, err)
	}

	sweeper := NewUnlockService(Deps{Repo: h.repo, Clock: h.clock, Publisher: h.publisher}, 2)
	h.clock.Set(models.UnlockAt(testStart))

	first, err := sweeper.ProcessUnlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.UsersProcessed)

	second, err := sweeper.ProcessUnlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.UsersProcessed)
}
