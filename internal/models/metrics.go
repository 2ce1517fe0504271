package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemMetricsID is the primary key of the single aggregate row.
const SystemMetricsID = 1

// SystemMetrics holds ledger-wide aggregate counters
type SystemMetrics struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	TotalUsers       int64           `gorm:"not null;default:0" json:"total_users"`
	TotalDistributed decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"total_distributed"`
	TotalLocked      decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"total_locked"`
	LastUnlockRun    *time.Time      `json:"last_unlock_run,omitempty"`
	RewardsPaused    bool            `gorm:"not null;default:false" json:"rewards_paused"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (SystemMetrics) TableName() string {
	return "system_metrics"
}

// EventTypeMetric counts grants per event type
type EventTypeMetric struct {
	EventType   string          `gorm:"primaryKey;size:64" json:"event_type"`
	Count       int64           `gorm:"not null;default:0" json:"count"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"total_amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (EventTypeMetric) TableName() string {
	return "event_type_metrics"
}
