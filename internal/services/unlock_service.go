package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
)

const defaultUnlockBatchSize = 500

// UnlockReport summarizes one sweep
type UnlockReport struct {
	UsersScanned   int             `json:"users_scanned"`
	UsersProcessed int             `json:"users_processed"`
	TotalUnlocked  decimal.Decimal `json:"total_unlocked"`
	LocksReleased  int             `json:"locks_released"`
	Errors         int             `json:"errors"`
}

// UnlockService releases locks whose unlock date has passed
type UnlockService struct {
	repo      *repository.Repository
	publisher audit.Publisher
	metrics   *metrics.LedgerMetrics
	clock     Clock
	batchSize int
}

func NewUnlockService(deps Deps, batchSize int) *UnlockService {
	deps = deps.withDefaults()
	if batchSize <= 0 {
		batchSize = defaultUnlockBatchSize
	}
	return &UnlockService{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		batchSize: batchSize,
	}
}

// ProcessUnlocks releases every due lock of up to batchSize accounts.
// Released locks are deleted, so running it again only picks up newly due locks.
func (s *UnlockService) ProcessUnlocks(ctx context.Context) (*UnlockReport, error) {
	now := s.clock.Now()
	report := &UnlockReport{TotalUnlocked: decimal.Zero}

	accounts, err := s.repo.ListAccountsWithDueLocks(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts with due locks: %w", err)
	}
	report.UsersScanned = len(accounts)

	for _, account := range accounts {
		result, err := s.sweepAccount(ctx, account.ID)
		if err != nil {
			report.Errors++
			log.WithError(err).WithField("user_id", account.ID).Error("[UnlockSweeper] Failed to release locks")
			continue
		}
		if result == nil || len(result.lockIDs) == 0 {
			continue
		}

		report.UsersProcessed++
		report.LocksReleased += len(result.lockIDs)
		report.TotalUnlocked = report.TotalUnlocked.Add(result.amount)
		s.metrics.RecordRelease("sweep", len(result.lockIDs), result.amount)

		publishBestEffort(ctx, s.publisher, audit.TopicRewardUnlocked, audit.UnlockEvent{
			UserID:     account.ID,
			LockIDs:    result.lockIDs,
			Amount:     result.amount,
			Trigger:    "sweep",
			OccurredAt: now,
		})
	}

	if err := s.repo.RecordUnlockRun(ctx, now); err != nil {
		log.WithError(err).Warn("[UnlockSweeper] Failed to record unlock run")
	}

	log.WithFields(log.Fields{
		"users_scanned":   report.UsersScanned,
		"users_processed": report.UsersProcessed,
		"locks_released":  report.LocksReleased,
		"total_unlocked":  report.TotalUnlocked.String(),
		"errors":          report.Errors,
	}).Info("[UnlockSweeper] Sweep finished")

	return report, nil
}

// sweepAccount releases the due locks of one account in its own transaction
func (s *UnlockService) sweepAccount(ctx context.Context, userID string) (*releaseResult, error) {
	var result *releaseResult
	err := s.repo.WithTransaction(ctx, userID, false, func(tx *repository.AccountTx) error {
		locks, err := tx.ListLocks(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load locks: %w", err)
		}

		now := s.clock.Now()
		due, _, _ := PartitionDue(locks, now)
		if len(due) == 0 {
			return nil
		}

		result, err = releaseLocks(ctx, tx, due, release{
			eventType: models.EventTypeTokenUnlock,
			keyPrefix: models.UnlockKeyPrefix,
			metadata:  map[string]interface{}{"trigger": "sweep"},
		}, now)
		return err
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		return nil, fmt.Errorf("lock already released: %w", err)
	}
	return result, err
}
