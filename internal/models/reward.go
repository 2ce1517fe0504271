package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RewardStatus string

const (
	RewardStatusPending   RewardStatus = "PENDING"
	RewardStatusCompleted RewardStatus = "COMPLETED"
	RewardStatusFailed    RewardStatus = "FAILED"
)

// Event types written by the ledger itself rather than by callers.
const (
	EventTypeTokenUnlock      = "token_unlock"
	EventTypeAdminForceUnlock = "admin_force_unlock"
)

// Idempotency key prefixes for ledger-generated entries.
const (
	UnlockKeyPrefix      = "unlock_"
	ForceUnlockKeyPrefix = "force_unlock_"
)

// RewardLogEntry is the append-only audit record of one grant attempt or release
type RewardLogEntry struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string          `gorm:"size:128;not null;index:idx_reward_logs_user_event_day,priority:1" json:"user_id"`
	EventType       string          `gorm:"size:64;not null;index:idx_reward_logs_user_event_day,priority:2" json:"event_type"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"total_amount"`
	ImmediateAmount decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"immediate_amount"`
	LockedAmount    decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"locked_amount"`
	Tier            int64           `gorm:"not null;default:0" json:"tier"`
	IdempotencyKey  *string         `gorm:"uniqueIndex;size:255" json:"idempotency_key,omitempty"`
	Status          RewardStatus    `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	ErrorMessage    string          `gorm:"type:text" json:"error_message,omitempty"`
	Metadata        JSONB           `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_reward_logs_user_event_day,priority:3" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func (RewardLogEntry) TableName() string {
	return "reward_logs"
}

// Key returns the idempotency key or "" when the entry does not claim one
func (e *RewardLogEntry) Key() string {
	if e.IdempotencyKey == nil {
		return ""
	}
	return *e.IdempotencyKey
}
