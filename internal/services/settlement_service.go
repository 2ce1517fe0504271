package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
)

const (
	defaultSettlementBatch = 50
	defaultRetryLimit      = 100
	defaultRetention       = 30 * 24 * time.Hour
)

// Ledger moves tokens on the settlement network
type Ledger interface {
	Transfer(ctx context.Context, amount decimal.Decimal, from, to string) (string, error)
	OperatorAddress() string
	ValidateAddress(address string) error
}

// SettlementReport summarizes one settlement run
type SettlementReport struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	// Skipped counts rows another worker claimed first
	Skipped int `json:"skipped"`
	// Unsaved counts attempts whose outcome could not be written; those rows stay IN_FLIGHT
	Unsaved int `json:"unsaved"`
}

// StatusStats is the size of one queue status
type StatusStats struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// QueueStats describes the settlement queue
type QueueStats struct {
	Pending   StatusStats `json:"pending"`
	InFlight  StatusStats `json:"in_flight"`
	Completed StatusStats `json:"completed"`
	Failed    StatusStats `json:"failed"`
	// StaleInFlight counts claimed rows older than models.StaleInFlightAfter; they need manual reconciliation
	StaleInFlight int64   `json:"stale_in_flight"`
	Total         int64   `json:"total"`
	SuccessRate   float64 `json:"success_rate"`
}

// SettlementService drains the transfer queue toward the settlement network
type SettlementService struct {
	repo      *repository.Repository
	ledger    Ledger
	publisher audit.Publisher
	metrics   *metrics.LedgerMetrics
	clock     Clock
	batchSize int
}

func NewSettlementService(deps Deps, batchSize int) *SettlementService {
	deps = deps.withDefaults()
	if batchSize <= 0 {
		batchSize = defaultSettlementBatch
	}
	return &SettlementService{
		repo:      deps.Repo,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		batchSize: batchSize,
	}
}

// ProcessPendingTransfers attempts the oldest PENDING transfers once each.
// Each row is claimed IN_FLIGHT before the ledger is called, so a row is sent by one worker only.
// A failed item never aborts the batch; every started item is finished and saved.
func (s *SettlementService) ProcessPendingTransfers(ctx context.Context) (*SettlementReport, error) {
	if s.ledger == nil {
		return nil, errors.New("settlement ledger is not configured")
	}

	transfers, err := s.repo.ListPendingTransfers(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transfers: %w", err)
	}

	report := &SettlementReport{}
	for _, transfer := range transfers {
		if ctx.Err() != nil {
			log.Warn("[Settlement] Context cancelled, leaving remaining transfers for the next run")
			break
		}

		// Started items run to completion even when the caller gives up.
		itemCtx := context.WithoutCancel(ctx)
		claimed, err := s.repo.ClaimTransfer(itemCtx, transfer.ID, s.clock.Now())
		if err != nil {
			log.WithError(err).WithField("transfer_id", transfer.ID.String()).
				Warn("[Settlement] Failed to claim transfer")
			report.Skipped++
			continue
		}
		if !claimed {
			report.Skipped++
			continue
		}
		transfer.Status = models.TransferStatusInFlight

		s.settle(itemCtx, transfer)
		report.Processed++

		if err := s.repo.SaveTransfer(itemCtx, transfer); err != nil {
			report.Unsaved++
			fields := log.Fields{
				"transfer_id": transfer.ID.String(),
				"outcome":     transfer.Status,
			}
			if transfer.TransactionID != nil {
				fields["transaction_id"] = *transfer.TransactionID
			}
			log.WithError(err).WithFields(fields).
				Error("[Settlement] Failed to save transfer outcome, row left IN_FLIGHT for reconciliation")
			continue
		}

		switch transfer.Status {
		case models.TransferStatusCompleted:
			report.Completed++
			s.afterCompleted(itemCtx, transfer)
		case models.TransferStatusFailed:
			report.Failed++
		default:
			report.Retried++
		}
	}

	if report.Processed > 0 || report.Skipped > 0 {
		log.WithFields(log.Fields{
			"processed": report.Processed,
			"completed": report.Completed,
			"retried":   report.Retried,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
			"unsaved":   report.Unsaved,
		}).Info("[Settlement] Batch finished")
	}
	return report, nil
}

// settle performs one attempt and records its outcome on transfer
func (s *SettlementService) settle(ctx context.Context, transfer *models.PendingTransfer) {
	start := time.Now()
	txID, err := s.attempt(ctx, transfer)
	elapsed := time.Since(start).Seconds()
	now := s.clock.Now()
	transfer.UpdatedAt = now

	if err == nil {
		transfer.Status = models.TransferStatusCompleted
		transfer.TransactionID = &txID
		transfer.CompletedAt = &now
		transfer.LastError = ""
		s.metrics.RecordTransfer(string(transfer.TransferType), "completed", transfer.Amount, elapsed)
		return
	}

	transfer.AttemptCount++
	terr := &TransferError{TransferID: transfer.ID, Attempt: transfer.AttemptCount, Err: err}
	transfer.LastError = err.Error()
	fields := log.Fields{
		"transfer_id": transfer.ID.String(),
		"user_id":     transfer.UserID,
		"attempt":     transfer.AttemptCount,
		"retry_round": transfer.RetryRound,
	}
	if transfer.AttemptCount >= transfer.AttemptBudget() {
		transfer.Status = models.TransferStatusFailed
		s.metrics.RecordTransfer(string(transfer.TransferType), "failed", transfer.Amount, elapsed)
		log.WithError(terr).WithFields(fields).Error("[Settlement] Transfer failed permanently")
		return
	}
	transfer.Status = models.TransferStatusPending
	s.metrics.RecordTransfer(string(transfer.TransferType), "retry", transfer.Amount, elapsed)
	log.WithError(terr).WithFields(fields).Warn("[Settlement] Transfer attempt failed, will retry")
}

func (s *SettlementService) attempt(ctx context.Context, transfer *models.PendingTransfer) (string, error) {
	if err := s.ledger.ValidateAddress(transfer.DestinationAddress); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !transfer.Amount.IsPositive() {
		return "", newValidationError("amount", "must be positive")
	}
	return s.ledger.Transfer(ctx, transfer.Amount, s.ledger.OperatorAddress(), transfer.DestinationAddress)
}

// afterCompleted links the transaction to the originating log entry and publishes the audit record
func (s *SettlementService) afterCompleted(ctx context.Context, transfer *models.PendingTransfer) {
	txID := ""
	if transfer.TransactionID != nil {
		txID = *transfer.TransactionID
	}
	if transfer.RewardLogID != nil {
		err := s.repo.AnnotateRewardLog(ctx, *transfer.RewardLogID, map[string]interface{}{
			"transaction_id": txID,
			"transfer_id":    transfer.ID.String(),
		})
		if err != nil {
			log.WithError(err).WithField("transfer_id", transfer.ID.String()).
				Warn("[Settlement] Failed to link transaction to reward log")
		}
	}
	publishBestEffort(ctx, s.publisher, audit.TopicTransferCompleted, audit.TransferEvent{
		TransferID:    transfer.ID,
		UserID:        transfer.UserID,
		TransferType:  string(transfer.TransferType),
		Amount:        transfer.Amount,
		Destination:   transfer.DestinationAddress,
		TransactionID: txID,
		RewardLogID:   transfer.RewardLogID,
		OccurredAt:    s.clock.Now(),
	})
}

// GetQueueStats returns counts and amounts per status and the settlement success rate
func (s *SettlementService) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.repo.TransferStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transfer queue: %w", err)
	}

	stats := &QueueStats{
		Pending:   StatusStats{Amount: decimal.Zero},
		InFlight:  StatusStats{Amount: decimal.Zero},
		Completed: StatusStats{Amount: decimal.Zero},
		Failed:    StatusStats{Amount: decimal.Zero},
	}
	for _, row := range rows {
		entry := StatusStats{Count: row.Count, Amount: row.Amount.Round(models.TransferDecimals)}
		switch row.Status {
		case models.TransferStatusPending:
			stats.Pending = entry
		case models.TransferStatusInFlight:
			stats.InFlight = entry
		case models.TransferStatusCompleted:
			stats.Completed = entry
		case models.TransferStatusFailed:
			stats.Failed = entry
		}
		stats.Total += row.Count
	}
	if settled := stats.Completed.Count + stats.Failed.Count; settled > 0 {
		stats.SuccessRate = float64(stats.Completed.Count) / float64(settled) * 100
	}

	if stats.InFlight.Count > 0 {
		stale, err := s.repo.CountStaleInFlight(ctx, s.clock.Now().Add(-models.StaleInFlightAfter))
		if err != nil {
			return nil, fmt.Errorf("failed to count stale in-flight transfers: %w", err)
		}
		stats.StaleInFlight = stale
	}

	s.metrics.SetQueueSize(string(models.TransferStatusPending), stats.Pending.Count)
	s.metrics.SetQueueSize(string(models.TransferStatusInFlight), stats.InFlight.Count)
	s.metrics.SetQueueSize(string(models.TransferStatusCompleted), stats.Completed.Count)
	s.metrics.SetQueueSize(string(models.TransferStatusFailed), stats.Failed.Count)
	return stats, nil
}

// RetryFailedTransfers moves up to limit FAILED transfers back to PENDING for another round of attempts
func (s *SettlementService) RetryFailedTransfers(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = defaultRetryLimit
	}
	n, err := s.repo.ResetFailedTransfers(ctx, limit, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed transfers: %w", err)
	}
	if n > 0 {
		log.WithField("count", n).Info("[Settlement] Requeued failed transfers")
	}
	return n, nil
}

// CleanupOldTransfers deletes COMPLETED and FAILED transfers older than olderThan
func (s *SettlementService) CleanupOldTransfers(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = defaultRetention
	}
	cutoff := s.clock.Now().Add(-olderThan)
	n, err := s.repo.DeleteSettledTransfersBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up transfers: %w", err)
	}
	if n > 0 {
		log.WithFields(log.Fields{"count": n, "cutoff": cutoff}).Info("[Settlement] Removed old transfers")
	}
	return n, nil
}
