package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxTransferAttempts is the number of settlement attempts per retry round before a transfer is terminal.
const MaxTransferAttempts = 3

// StaleInFlightAfter is how long a claimed transfer may sit unsaved before stats flag it.
const StaleInFlightAfter = 10 * time.Minute

// TransferDecimals is the precision amounts are rounded to before settlement.
const TransferDecimals = 8

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusInFlight  TransferStatus = "IN_FLIGHT"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

type TransferType string

const (
	TransferTypeReward TransferType = "reward"
	TransferTypeUnlock TransferType = "unlock"
)

// PendingTransfer is one queued outbound value movement toward the settlement network
type PendingTransfer struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             string          `gorm:"size:128;not null;index" json:"user_id"`
	DestinationAddress string          `gorm:"size:64;not null" json:"destination_address"`
	Amount             decimal.Decimal `gorm:"type:decimal(28,8);not null" json:"amount"`
	Status             TransferStatus  `gorm:"size:20;not null;default:PENDING;index:idx_pending_transfers_queue,priority:1" json:"status"`
	AttemptCount       int             `gorm:"not null;default:0" json:"attempt_count"`
	RetryRound         int             `gorm:"not null;default:0" json:"retry_round"`
	RewardLogID        *uuid.UUID      `gorm:"type:uuid;index" json:"reward_log_id,omitempty"`
	TransferType       TransferType    `gorm:"size:20;not null" json:"transfer_type"`
	TransactionID      *string         `gorm:"size:128" json:"transaction_id,omitempty"`
	LastError          string          `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt          time.Time       `gorm:"not null;index:idx_pending_transfers_queue,priority:2" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"index" json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

func (PendingTransfer) TableName() string {
	return "pending_transfers"
}

// AttemptBudget is the attempt count at which the current retry round gives up.
// Attempts accumulate across rounds and are never reset.
func (t *PendingTransfer) AttemptBudget() int {
	return MaxTransferAttempts * (t.RetryRound + 1)
}

// NewPendingTransfer builds a PENDING transfer with the amount rounded for settlement
func NewPendingTransfer(userID, destination string, amount decimal.Decimal, kind TransferType, rewardLogID *uuid.UUID, now time.Time) *PendingTransfer {
	return &PendingTransfer{
		ID:                 uuid.New(),
		UserID:             userID,
		DestinationAddress: destination,
		Amount:             amount.Round(TransferDecimals),
		Status:             TransferStatusPending,
		RewardLogID:        rewardLogID,
		TransferType:       kind,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
