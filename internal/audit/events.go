package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GrantEvent is published after a reward is applied
type GrantEvent struct {
	RewardLogID     uuid.UUID       `json:"reward_log_id"`
	UserID          string          `json:"user_id"`
	EventType       string          `json:"event_type"`
	Tier            int64           `json:"tier"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ImmediateAmount decimal.Decimal `json:"immediate_amount"`
	LockedAmount    decimal.Decimal `json:"locked_amount"`
	LockID          *uuid.UUID      `json:"lock_id,omitempty"`
	TransferID      *uuid.UUID      `json:"transfer_id,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func (e GrantEvent) PartitionKey() string { return e.UserID }

// UnlockEvent is published when locks are released by the sweep or an admin
type UnlockEvent struct {
	UserID     string          `json:"user_id"`
	LockIDs    []uuid.UUID     `json:"lock_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Trigger    string          `json:"trigger"`
	AdminID    string          `json:"admin_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e UnlockEvent) PartitionKey() string { return e.UserID }

// TransferEvent is published when a queued transfer settles
type TransferEvent struct {
	TransferID    uuid.UUID       `json:"transfer_id"`
	UserID        string          `json:"user_id"`
	TransferType  string          `json:"transfer_type"`
	Amount        decimal.Decimal `json:"amount"`
	Destination   string          `json:"destination"`
	TransactionID string          `json:"transaction_id"`
	RewardLogID   *uuid.UUID      `json:"reward_log_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e TransferEvent) PartitionKey() string { return e.UserID }
