// Package rewardconfig provides the halving reward tables and the stores they are read from.
package rewardconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Override replaces the tiered amount of an event type until it expires
type Override struct {
	Amount    decimal.Decimal `yaml:"override_amount" json:"override_amount"`
	ExpiresAt time.Time       `yaml:"expires_at" json:"expires_at"`
}

// HalvingConfig is the tier -> event type -> amount table with its caps and overrides
type HalvingConfig struct {
	Thresholds      []int64                              `yaml:"thresholds" json:"thresholds"`
	Mapping         map[int64]map[string]decimal.Decimal `yaml:"mapping" json:"mapping"`
	Overrides       map[string]Override                  `yaml:"overrides" json:"overrides"`
	DailyCaps       map[string]int                       `yaml:"daily_caps" json:"daily_caps"`
	DefaultDailyCap int                                  `yaml:"default_daily_cap" json:"default_daily_cap"`
}

// Store is a read-only source of the halving configuration
type Store interface {
	Load(ctx context.Context) (*HalvingConfig, error)
}

var ErrNoConfig = errors.New("reward configuration not found")

// Validate checks that thresholds exist and every mapped tier is a threshold
func (c *HalvingConfig) Validate() error {
	if len(c.Thresholds) == 0 {
		return errors.New("at least one tier threshold is required")
	}
	known := make(map[int64]bool, len(c.Thresholds))
	for _, t := range c.Thresholds {
		if t <= 0 {
			return fmt.Errorf("tier threshold must be positive, got %d", t)
		}
		known[t] = true
	}
	for tier, amounts := range c.Mapping {
		if !known[tier] {
			return fmt.Errorf("mapping references unknown tier %d", tier)
		}
		for eventType, amount := range amounts {
			if amount.IsNegative() {
				return fmt.Errorf("negative amount for %s in tier %d", eventType, tier)
			}
		}
	}
	for eventType, o := range c.Overrides {
		if o.Amount.IsNegative() {
			return fmt.Errorf("negative override amount for %s", eventType)
		}
	}
	return nil
}

// SortedThresholds returns the thresholds from largest to smallest
func (c *HalvingConfig) SortedThresholds() []int64 {
	out := append([]int64(nil), c.Thresholds...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// AmountFor resolves the grant amount for an event type in a tier.
// A non-expired override wins over the tiered amount.
func (c *HalvingConfig) AmountFor(tier int64, eventType string, now time.Time) (decimal.Decimal, bool) {
	if o, ok := c.Overrides[eventType]; ok && now.Before(o.ExpiresAt) {
		return o.Amount, true
	}
	amounts, ok := c.Mapping[tier]
	if !ok {
		return decimal.Zero, false
	}
	amount, ok := amounts[eventType]
	return amount, ok
}

// DailyCap returns the per-user daily cap for an event type; 0 means unlimited
func (c *HalvingConfig) DailyCap(eventType string) int {
	if limit, ok := c.DailyCaps[eventType]; ok {
		return limit
	}
	return c.DefaultDailyCap
}

// Default returns the built-in table used when no configuration document is supplied
func Default() *HalvingConfig {
	base := map[string]decimal.Decimal{
		"signup_bonus":  decimal.NewFromInt(700),
		"referral":      decimal.NewFromInt(140),
		"daily_checkin": decimal.NewFromInt(14),
		"ad_view":       decimal.NewFromFloat(1.4),
	}
	thresholds := []int64{10_000, 100_000, 1_000_000, 10_000_000}
	mapping := make(map[int64]map[string]decimal.Decimal, len(thresholds))
	divisor := decimal.NewFromInt(1)
	for _, tier := range thresholds {
		amounts := make(map[string]decimal.Decimal, len(base))
		for eventType, amount := range base {
			amounts[eventType] = amount.Div(divisor).Round(8)
		}
		mapping[tier] = amounts
		divisor = divisor.Mul(decimal.NewFromInt(2))
	}
	return &HalvingConfig{
		Thresholds: thresholds,
		Mapping:    mapping,
		DailyCaps: map[string]int{
			"signup_bonus":  1,
			"referral":      10,
			"daily_checkin": 1,
			"ad_view":       20,
		},
	}
}

// StaticStore serves a fixed configuration
type StaticStore struct {
	Config *HalvingConfig
}

func (s StaticStore) Load(ctx context.Context) (*HalvingConfig, error) {
	if s.Config == nil {
		return nil, ErrNoConfig
	}
	return s.Config, nil
}
