package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Clock is the time source of the ledger services
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var half = decimal.NewFromFloat(0.5)

// ResolveTier returns the largest threshold not above totalUsers.
// Below the smallest threshold the smallest one applies; there is no tier zero.
func ResolveTier(totalUsers int64, thresholds []int64) int64 {
	if len(thresholds) == 0 {
		return 0
	}
	floor := thresholds[0]
	best := int64(-1)
	for _, t := range thresholds {
		if t < floor {
			floor = t
		}
		if t <= totalUsers && t > best {
			best = t
		}
	}
	if best < 0 {
		return floor
	}
	return best
}

// Split divides a grant into its immediate and locked halves at 8 decimals.
// The locked half absorbs the rounding remainder.
func Split(amount decimal.Decimal) (immediate, locked decimal.Decimal) {
	amount = amount.Round(8)
	immediate = amount.Mul(half).Round(8)
	locked = amount.Sub(immediate).Round(8)
	return immediate, locked
}

// Schedule is the reward table in effect for the current tier
type Schedule struct {
	Tier       int64 `json:"tier"`
	TotalUsers int64 `json:"total_users"`
	// Tiers lists every threshold, largest first
	Tiers []int64 `json:"tiers"`
	// NextThreshold is the user count of the next halving, absent in the last tier
	NextThreshold *int64                     `json:"next_threshold,omitempty"`
	Amounts       map[string]decimal.Decimal `json:"amounts"`
	DailyCaps     map[string]int             `json:"daily_caps"`
}

// CurrentSchedule resolves the tier from the user count and lists the amounts it grants
func (s *RewardService) CurrentSchedule(ctx context.Context) (*Schedule, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	sys, err := s.repo.GetSystemMetrics(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tiers := cfg.SortedThresholds()
	tier := ResolveTier(sys.TotalUsers, tiers)
	schedule := &Schedule{
		Tier:       tier,
		TotalUsers: sys.TotalUsers,
		Tiers:      tiers,
		Amounts:    make(map[string]decimal.Decimal),
		DailyCaps:  make(map[string]int),
	}
	for _, t := range tiers {
		if t <= tier {
			break
		}
		next := t
		schedule.NextThreshold = &next
	}
	eventTypes := make(map[string]bool)
	for eventType := range cfg.Mapping[tier] {
		eventTypes[eventType] = true
	}
	for eventType := range cfg.Overrides {
		eventTypes[eventType] = true
	}
	for eventType := range eventTypes {
		if amount, ok := cfg.AmountFor(tier, eventType, now); ok {
			schedule.Amounts[eventType] = amount
			schedule.DailyCaps[eventType] = cfg.DailyCap(eventType)
		}
	}
	return schedule, nil
}
