package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWalletCreatesAccount(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	account, err := h.accounts.RegisterWallet(ctx, "user-1", "  "+testWallet+"  ")
	require.NoError(t, err)
	require.NotNil(t, account.WalletAddress)
	assert.Equal(t, testWallet, *account.WalletAddress)

	sys, err := h.repo.GetSystemMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sys.TotalUsers)

	// the first grant of a registered user does not count it twice
	_, err = h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)
	sys, err = h.repo.GetSystemMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sys.TotalUsers)
}

func TestRegisterWalletValidation(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		address string
		field   string
	}{
		{"missing user", "", testWallet, "user_id"},
		{"missing address", "user-1", "   ", "wallet_address"},
		{"rejected by ledger", "user-1", "bad-key", "wallet_address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.accounts.RegisterWallet(ctx, tt.userID, tt.address)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := h.accounts.GetBalance(ctx, "user-1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRegisterWalletInUse(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.accounts.RegisterWallet(ctx, "user-1", testWallet)
	require.NoError(t, err)
	_, err = h.accounts.RegisterWallet(ctx, "user-2", testWallet)
	assert.ErrorIs(t, err, ErrWalletInUse)

	// re-registering the same address for its owner is allowed
	_, err = h.accounts.RegisterWallet(ctx, "user-1", testWallet)
	require.NoError(t, err)
}

func TestGetBalance(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()

	_, err := h.rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)

	balance, err := h.accounts.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "350.00000000", balance.AvailableBalance)
	assert.Equal(t, "350.00000000", balance.LockedBalance)
	assert.Equal(t, "700.00000000", balance.TotalEarned)
	assert.Nil(t, balance.WalletAddress)
	require.Len(t, balance.Locks, 1)
	assert.Equal(t, "signup_bonus", balance.Locks[0].Source)
}
