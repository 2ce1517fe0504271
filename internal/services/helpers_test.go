package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reward-ledger/internal/database"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
	"reward-ledger/internal/rewardconfig"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transferCall struct {
	Amount decimal.Decimal
	From   string
	To     string
}

type fakeLedger struct {
	mu    sync.Mutex
	err   error
	calls []transferCall
	// onTransfer runs after every call, outside the lock
	onTransfer func()
}

func (l *fakeLedger) Transfer(ctx context.Context, amount decimal.Decimal, from, to string) (string, error) {
	l.mu.Lock()
	l.calls = append(l.calls, transferCall{Amount: amount, From: from, To: to})
	err, n, hook := l.err, len(l.calls), l.onTransfer
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sig-%d", n), nil
}

func (l *fakeLedger) setHook(hook func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTransfer = hook
}

func (l *fakeLedger) OperatorAddress() string {
	return "operator-wallet"
}

func (l *fakeLedger) ValidateAddress(address string) error {
	if address == "" || strings.HasPrefix(address, "bad") {
		return errors.New("not a valid public key")
	}
	return nil
}

func (l *fakeLedger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *fakeLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type published struct {
	Topic   string
	Message interface{}
}

type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	messages []published
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{Topic: topic, Message: message})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Topic)
	}
	return out
}

// ledgerHarness wires every service against one in-memory database
type ledgerHarness struct {
	db         *gorm.DB
	repo       *repository.Repository
	clock      *fakeClock
	ledger     *fakeLedger
	publisher  *recordingPublisher
	configs    *rewardconfig.StaticStore
	rewards    *RewardService
	unlocks    *UnlockService
	settlement *SettlementService
	admin      *AdminService
	accounts   *AccountService
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	db := setupLedgerDB(t)
	h := &ledgerHarness{
		db:        db,
		repo:      repository.NewRepository(db),
		clock:     newFakeClock(testStart),
		ledger:    &fakeLedger{},
		publisher: &recordingPublisher{},
		configs:   &rewardconfig.StaticStore{Config: rewardconfig.Default()},
	}
	deps := Deps{
		Repo:      h.repo,
		Configs:   h.configs,
		Publisher: h.publisher,
		Ledger:    h.ledger,
		Metrics:   metrics.NewLedgerMetrics(prometheus.NewRegistry()),
		Clock:     h.clock,
	}
	h.rewards = NewRewardService(deps, false)
	h.unlocks = NewUnlockService(deps, 0)
	h.settlement = NewSettlementService(deps, 0)
	h.admin = NewAdminService(deps, h.rewards, h.settlement)
	h.accounts = NewAccountService(deps)
	return h
}

// setConfig swaps the configuration served to the services
func (h *ledgerHarness) setConfig(cfg *rewardconfig.HalvingConfig) {
	h.configs.Config = cfg
}

func (h *ledgerHarness) account(t *testing.T, userID string) *models.UserAccount {
	t.Helper()
	account, err := h.repo.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return account
}

func (h *ledgerHarness) locks(t *testing.T, userID string) []models.LockRecord {
	t.Helper()
	locks, err := h.repo.ListLocks(context.Background(), userID)
	require.NoError(t, err)
	return locks
}

func (h *ledgerHarness) transfers(t *testing.T, userID string) []*models.PendingTransfer {
	t.Helper()
	transfers, err := h.repo.ListTransfersByUser(context.Background(), userID, 100)
	require.NoError(t, err)
	return transfers
}

func (h *ledgerHarness) grantAdmin(t *testing.T, userID, role string) {
	t.Helper()
	_, err := h.repo.UpsertAdminUser(context.Background(), userID, role)
	require.NoError(t, err)
}

func (h *ledgerHarness) setTotalUsers(t *testing.T, n int64) {
	t.Helper()
	require.NoError(t, h.db.Save(&models.SystemMetrics{
		ID:               models.SystemMetricsID,
		TotalUsers:       n,
		TotalDistributed: decimal.Zero,
		TotalLocked:      decimal.Zero,
	}).Error)
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s", expected, actual.String())
}
