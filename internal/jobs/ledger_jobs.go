package jobs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/services"
)

// Job names accepted by Scheduler.Trigger
const (
	JobUnlockSweep    = "unlock_sweep"
	JobSettlement     = "settlement"
	JobRetryFailed    = "retry_failed_transfers"
	JobCleanupSettled = "cleanup_transfers"
)

// LedgerSchedules holds the cron specs and limits of the ledger jobs
type LedgerSchedules struct {
	Unlock     string
	Settlement string
	Retry      string
	Cleanup    string
	RetryLimit int
	Retention  time.Duration
}

// RegisterLedgerJobs wires the unlock sweep and the settlement queue maintenance into s
func RegisterLedgerJobs(s *Scheduler, unlocks *services.UnlockService, settlement *services.SettlementService, cfg LedgerSchedules) error {
	jobs := []struct {
		name string
		spec string
		fn   Func
	}{
		{JobUnlockSweep, cfg.Unlock, func(ctx context.Context) error {
			report, err := unlocks.ProcessUnlocks(ctx)
			if err != nil {
				return err
			}
			if report.Errors > 0 {
				log.WithField("errors", report.Errors).Warn("[UnlockSweeper] Some accounts were not released")
			}
			return nil
		}},
		{JobSettlement, cfg.Settlement, func(ctx context.Context) error {
			_, err := settlement.ProcessPendingTransfers(ctx)
			return err
		}},
		{JobRetryFailed, cfg.Retry, func(ctx context.Context) error {
			_, err := settlement.RetryFailedTransfers(ctx, cfg.RetryLimit)
			return err
		}},
		{JobCleanupSettled, cfg.Cleanup, func(ctx context.Context) error {
			if _, err := settlement.CleanupOldTransfers(ctx, cfg.Retention); err != nil {
				return err
			}
			_, err := settlement.GetQueueStats(ctx)
			return err
		}},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}
