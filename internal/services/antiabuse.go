package services

import (
	"context"
	"fmt"
	"time"

	"reward-ledger/internal/repository"
	"reward-ledger/internal/rewardconfig"
)

// AntiAbuseValidator enforces per-user, per-event daily caps
type AntiAbuseValidator struct {
	clock Clock
}

func NewAntiAbuseValidator(clock Clock) *AntiAbuseValidator {
	return &AntiAbuseValidator{clock: clock}
}

// DayBounds returns the UTC calendar day containing t as [start, end)
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Validate counts the user's COMPLETED grants of eventType today and rejects
// the request once the configured cap is reached. A cap of 0 means unlimited.
func (v *AntiAbuseValidator) Validate(ctx context.Context, repo *repository.Repository, cfg *rewardconfig.HalvingConfig, userID, eventType string) error {
	limit := cfg.DailyCap(eventType)
	if limit <= 0 {
		return nil
	}

	from, to := DayBounds(v.clock.Now())
	count, err := repo.CountCompletedRewards(ctx, userID, eventType, from, to)
	if err != nil {
		return fmt.Errorf("failed to count today's rewards: %w", err)
	}
	if count >= int64(limit) {
		return &AntiAbuseError{UserID: userID, EventType: eventType, Count: count, Cap: limit}
	}
	return nil
}
