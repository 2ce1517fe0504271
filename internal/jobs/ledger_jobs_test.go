package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reward-ledger/internal/database"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/repository"
	"reward-ledger/internal/rewardconfig"
	"reward-ledger/internal/services"
)

type stubLedger struct{ sent int }

func (l *stubLedger) Transfer(ctx context.Context, amount decimal.Decimal, from, to string) (string, error) {
	l.sent++
	return "sig", nil
}

func (l *stubLedger) OperatorAddress() string { return "operator" }

func (l *stubLedger) ValidateAddress(address string) error { return nil }

func TestRegisterLedgerJobs(t *testing.T) {
	db, err := database.OpenSQLite("file:jobs_ledger?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	m := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	ledger := &stubLedger{}
	deps := services.Deps{
		Repo:    repository.NewRepository(db),
		Configs: rewardconfig.StaticStore{Config: rewardconfig.Default()},
		Ledger:  ledger,
		Metrics: m,
	}
	rewards := services.NewRewardService(deps, false)
	accounts := services.NewAccountService(deps)
	ctx := context.Background()

	_, err = accounts.RegisterWallet(ctx, "user-1", "wallet-1")
	require.NoError(t, err)
	_, err = rewards.ApplyReward(ctx, "user-1", "signup_bonus", nil, "signup-1")
	require.NoError(t, err)

	s := NewScheduler(m)
	require.NoError(t, RegisterLedgerJobs(s,
		services.NewUnlockService(deps, 0),
		services.NewSettlementService(deps, 0),
		LedgerSchedules{Unlock: "@daily", Settlement: "@every 2m", Retention: time.Hour},
	))

	for _, name := range []string{JobUnlockSweep, JobSettlement, JobRetryFailed, JobCleanupSettled} {
		require.NoError(t, s.Trigger(ctx, name), name)
	}
	assert.Equal(t, 1, ledger.sent)
	assert.Equal(t, 4, testutil.CollectAndCount(m.JobDuration))
	assert.Len(t, s.Status(), 4)
}
