package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LockYears is how many calendar years the locked half of a grant is withheld.
const LockYears = 2

// UnlockAt is the release time of a lock created at created.
// Calendar arithmetic keeps the anniversary across leap years; Feb 29 normalizes to Mar 1.
func UnlockAt(created time.Time) time.Time {
	return created.AddDate(LockYears, 0, 0)
}

// UserAccount holds a user's reward balances
type UserAccount struct {
	ID               string          `gorm:"primaryKey;size:128" json:"id"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"available_balance"`
	LockedBalance    decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0;index" json:"locked_balance"`
	TotalEarned      decimal.Decimal `gorm:"type:decimal(28,8);not null;default:0" json:"total_earned"`
	WalletAddress    *string         `gorm:"uniqueIndex;size:64" json:"wallet_address,omitempty"`
	Locks            []LockRecord    `gorm:"foreignKey:UserID" json:"locks,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for UserAccount model
func (UserAccount) TableName() string {
	return "user_accounts"
}

// HasWallet reports whether the account has a settlement destination registered
func (a *UserAccount) HasWallet() bool {
	return a.WalletAddress != nil && *a.WalletAddress != ""
}

// LockRecord is the locked half of a single grant
type LockRecord struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"lock_id"`
	UserID    string          `gorm:"size:128;not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(28,8);not null" json:"amount"`
	Source    string          `gorm:"size:64;not null" json:"source"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UnlockAt  time.Time       `gorm:"not null;index" json:"unlock_at"`
}

func (LockRecord) TableName() string {
	return "lock_records"
}

// IsDue reports whether the lock may be released at now
func (l LockRecord) IsDue(now time.Time) bool {
	return !l.UnlockAt.After(now)
}
