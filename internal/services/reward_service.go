package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/models"
	"reward-ledger/internal/repository"
	"reward-ledger/internal/rewardconfig"
)

const (
	maxUserIDLength = 128
	maxKeyLength    = 255
	maxEventLength  = 64
)

// Deps are the collaborators shared by the ledger services
type Deps struct {
	Repo      *repository.Repository
	Configs   rewardconfig.Store
	Publisher audit.Publisher
	Ledger    Ledger
	Metrics   *metrics.LedgerMetrics
	Clock     Clock
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Publisher == nil {
		d.Publisher = audit.LogPublisher{}
	}
	return d
}

// RewardService applies reward grants to user accounts
type RewardService struct {
	repo      *repository.Repository
	configs   rewardconfig.Store
	validator *AntiAbuseValidator
	publisher audit.Publisher
	metrics   *metrics.LedgerMetrics
	clock     Clock
	// forcePaused pins the service paused regardless of the stored flag
	forcePaused bool
}

func NewRewardService(deps Deps, forcePaused bool) *RewardService {
	deps = deps.withDefaults()
	return &RewardService{
		repo:        deps.Repo,
		configs:     deps.Configs,
		validator:   NewAntiAbuseValidator(deps.Clock),
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		forcePaused: forcePaused,
	}
}

// IsPaused reports whether grants are stopped, either by configuration or by the stored admin flag
func (s *RewardService) IsPaused(ctx context.Context) (bool, error) {
	if s.forcePaused {
		return true, nil
	}
	sys, err := s.repo.GetSystemMetrics(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return sys.RewardsPaused, nil
}

// grantPlan is the resolved amount of one grant before it is written
type grantPlan struct {
	tier      int64
	amount    decimal.Decimal
	immediate decimal.Decimal
	locked    decimal.Decimal
}

// ApplyReward grants the reward for eventType to userID at most once per idempotency key.
// A replayed key returns the entry recorded by the first request unchanged,
// together with ErrPreviouslyFailed when that request failed permanently.
func (s *RewardService) ApplyReward(
	ctx context.Context,
	userID string,
	eventType string,
	metadata map[string]interface{},
	idempotencyKey string,
) (*models.RewardLogEntry, error) {
	paused, err := s.IsPaused(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		s.metrics.RecordRejection(eventType, "paused")
		return nil, ErrSystemPaused
	}
	if err := validateGrant(userID, eventType, idempotencyKey); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetRewardLogByKey(ctx, idempotencyKey)
	if err == nil {
		log.WithFields(log.Fields{"user_id": userID, "idempotency_key": existing.Key()}).
			Debug("Replaying reward for known idempotency key")
		return replayed(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, s.fail(ctx, userID, eventType, idempotencyKey, metadata, nil, err)
	}

	if err := s.validator.Validate(ctx, s.repo, cfg, userID, eventType); err != nil {
		s.metrics.RecordRejection(eventType, "daily_cap")
		return nil, err
	}

	plan, err := s.plan(ctx, cfg, eventType)
	if err != nil {
		return nil, s.fail(ctx, userID, eventType, idempotencyKey, metadata, plan, err)
	}

	var (
		entry    *models.RewardLogEntry
		lock     *models.LockRecord
		transfer *models.PendingTransfer
		winner   *models.RewardLogEntry
	)
	err = s.repo.WithTransaction(ctx, userID, true, func(tx *repository.AccountTx) error {
		// Requests holding the same key serialize on the account row when they target the same user.
		if prior, err := tx.GetRewardLogByKey(ctx, idempotencyKey); err == nil {
			winner = prior
			return repository.ErrDuplicateKey
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.validator.Validate(ctx, tx.Repository, cfg, userID, eventType); err != nil {
			return err
		}

		now := s.clock.Now()
		account := tx.Account
		account.AvailableBalance = account.AvailableBalance.Add(plan.immediate)
		account.LockedBalance = account.LockedBalance.Add(plan.locked)
		account.TotalEarned = account.TotalEarned.Add(plan.amount)
		if err := tx.SaveBalances(ctx); err != nil {
			return fmt.Errorf("failed to update balances: %w", err)
		}

		meta := copyMetadata(metadata)
		if plan.locked.IsPositive() {
			lock = &models.LockRecord{
				ID:        uuid.New(),
				UserID:    userID,
				Amount:    plan.locked,
				Source:    eventType,
				CreatedAt: now,
				UnlockAt:  models.UnlockAt(now),
			}
			if err := tx.CreateLock(ctx, lock); err != nil {
				return fmt.Errorf("failed to create lock: %w", err)
			}
			meta["lock_id"] = lock.ID.String()
		}

		key := idempotencyKey
		entry = &models.RewardLogEntry{
			ID:              uuid.New(),
			UserID:          userID,
			EventType:       eventType,
			TotalAmount:     plan.amount,
			ImmediateAmount: plan.immediate,
			LockedAmount:    plan.locked,
			Tier:            plan.tier,
			IdempotencyKey:  &key,
			Status:          models.RewardStatusPending,
			Metadata:        meta,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateRewardLog(ctx, entry); err != nil {
			return err
		}

		if err := tx.RecordGrant(ctx, eventType, plan.amount, plan.locked, tx.Created); err != nil {
			return fmt.Errorf("failed to update system metrics: %w", err)
		}

		if plan.immediate.IsPositive() && account.HasWallet() {
			transfer = models.NewPendingTransfer(userID, *account.WalletAddress, plan.immediate,
				models.TransferTypeReward, &entry.ID, now)
			if err := tx.CreateTransfer(ctx, transfer); err != nil {
				return fmt.Errorf("failed to enqueue transfer: %w", err)
			}
		}

		if err := tx.CompleteRewardLog(ctx, entry.ID, now); err != nil {
			return fmt.Errorf("failed to complete reward log: %w", err)
		}
		entry.Status = models.RewardStatusCompleted
		entry.CompletedAt = &now
		return nil
	})
	if err != nil {
		var abuse *AntiAbuseError
		switch {
		case errors.As(err, &abuse):
			s.metrics.RecordRejection(eventType, "daily_cap")
			return nil, err
		case errors.Is(err, repository.ErrDuplicateKey):
			return s.replayWinner(ctx, idempotencyKey, winner, err)
		}
		return nil, s.fail(ctx, userID, eventType, idempotencyKey, metadata, plan, err)
	}

	s.publishGrant(ctx, entry, lock, transfer)
	s.metrics.RecordGrant(eventType, plan.tier, plan.immediate, plan.locked)

	log.WithFields(log.Fields{
		"user_id":    userID,
		"event_type": eventType,
		"tier":       plan.tier,
		"amount":     plan.amount.String(),
	}).Info("Reward applied")

	return entry, nil
}

func validateGrant(userID, eventType, key string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return newValidationError("user_id", "must not be empty")
	case len(userID) > maxUserIDLength:
		return newValidationError("user_id", "too long")
	case strings.TrimSpace(eventType) == "":
		return newValidationError("event_type", "must not be empty")
	case len(eventType) > maxEventLength:
		return newValidationError("event_type", "too long")
	case strings.TrimSpace(key) == "":
		return newValidationError("idempotency_key", "must not be empty")
	case len(key) > maxKeyLength:
		return newValidationError("idempotency_key", "too long")
	case strings.HasPrefix(key, models.UnlockKeyPrefix) || strings.HasPrefix(key, models.ForceUnlockKeyPrefix):
		return newValidationError("idempotency_key", "uses a reserved prefix")
	}
	return nil
}

func (s *RewardService) loadConfig(ctx context.Context) (*rewardconfig.HalvingConfig, error) {
	cfg, err := s.configs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	return cfg, nil
}

// plan resolves the tier from the current user count and the amount it grants
func (s *RewardService) plan(ctx context.Context, cfg *rewardconfig.HalvingConfig, eventType string) (*grantPlan, error) {
	sys, err := s.repo.GetSystemMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read user count: %w", err)
	}

	tier := ResolveTier(sys.TotalUsers, cfg.Thresholds)
	amount, ok := cfg.AmountFor(tier, eventType, s.clock.Now())
	if !ok {
		return &grantPlan{tier: tier}, &ConfigurationError{Tier: tier, EventType: eventType}
	}
	amount = amount.Round(8)
	immediate, locked := Split(amount)
	return &grantPlan{tier: tier, amount: amount, immediate: immediate, locked: locked}, nil
}

// replayWinner returns the entry of the request that claimed the key first
func (s *RewardService) replayWinner(ctx context.Context, key string, winner *models.RewardLogEntry, cause error) (*models.RewardLogEntry, error) {
	if winner != nil {
		return replayed(winner)
	}
	entry, err := s.repo.GetRewardLogByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("duplicate idempotency key %s but no entry found: %w", key, cause)
	}
	log.WithField("idempotency_key", entry.Key()).Info("Concurrent reward request resolved to existing entry")
	return replayed(entry)
}

// replayed returns a stored entry to a repeated request; a FAILED entry comes with ErrPreviouslyFailed
func replayed(entry *models.RewardLogEntry) (*models.RewardLogEntry, error) {
	if entry.Status == models.RewardStatusFailed {
		return entry, fmt.Errorf("%w: %s", ErrPreviouslyFailed, entry.ErrorMessage)
	}
	return entry, nil
}

// fail records a FAILED entry for the attempt and returns cause. Retryable failures
// leave the key unclaimed so the caller can retry with it.
func (s *RewardService) fail(
	ctx context.Context,
	userID, eventType, key string,
	metadata map[string]interface{},
	plan *grantPlan,
	cause error,
) error {
	now := s.clock.Now()
	meta := copyMetadata(metadata)
	entry := &models.RewardLogEntry{
		ID:           uuid.New(),
		UserID:       userID,
		EventType:    eventType,
		Status:       models.RewardStatusFailed,
		ErrorMessage: cause.Error(),
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if plan != nil {
		entry.Tier = plan.tier
		entry.TotalAmount = plan.amount
		entry.ImmediateAmount = plan.immediate
		entry.LockedAmount = plan.locked
	}
	if isRetryable(cause) {
		meta["idempotency_key"] = key
		meta["retryable"] = true
	} else {
		k := key
		entry.IdempotencyKey = &k
	}

	if err := s.repo.CreateRewardLog(ctx, entry); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		log.WithError(err).WithField("user_id", userID).Error("Failed to record failed reward attempt")
	}

	reason := "error"
	switch {
	case errors.Is(cause, ErrUnknownEventType):
		reason = "unknown_event_type"
	case errors.Is(cause, ErrConcurrencyConflict):
		reason = "conflict"
	}
	s.metrics.RecordRejection(eventType, reason)

	log.WithError(cause).WithFields(log.Fields{
		"user_id":    userID,
		"event_type": eventType,
	}).Warn("Reward application failed")
	return cause
}

func (s *RewardService) publishGrant(ctx context.Context, entry *models.RewardLogEntry, lock *models.LockRecord, transfer *models.PendingTransfer) {
	event := audit.GrantEvent{
		RewardLogID:     entry.ID,
		UserID:          entry.UserID,
		EventType:       entry.EventType,
		Tier:            entry.Tier,
		TotalAmount:     entry.TotalAmount,
		ImmediateAmount: entry.ImmediateAmount,
		LockedAmount:    entry.LockedAmount,
		OccurredAt:      entry.CreatedAt,
	}
	if lock != nil {
		event.LockID = &lock.ID
	}
	if transfer != nil {
		event.TransferID = &transfer.ID
	}
	publishBestEffort(ctx, s.publisher, audit.TopicRewardGranted, event)
}

// publishBestEffort sends an audit event and only logs failures
func publishBestEffort(ctx context.Context, publisher audit.Publisher, topic string, event interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, topic, event); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("Audit publish failed")
	}
}

func copyMetadata(in map[string]interface{}) models.JSONB {
	out := make(models.JSONB, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// History returns a user's reward log, newest first
func (s *RewardService) History(ctx context.Context, userID string, limit, offset int) ([]*models.RewardLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRewardLogs(ctx, userID, limit, offset)
}

