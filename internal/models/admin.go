package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB for PostgreSQL JSON support
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Admin roles
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleLedgerAdmin = "LEDGER_ADMIN"
	RoleAnalyst     = "ANALYST"
)

// AdminUser represents a user with elevated permissions
type AdminUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"uniqueIndex;size:128;not null" json:"user_id"`
	Role      string    `gorm:"size:20;not null" json:"role"` // SUPER_ADMIN, LEDGER_ADMIN, ANALYST
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

// CanUnlock reports whether the role may release locks out of schedule
func (a *AdminUser) CanUnlock() bool {
	return a.Role == RoleSuperAdmin || a.Role == RoleLedgerAdmin
}

// Admin action names
const (
	AdminActionForceUnlock = "FORCE_UNLOCK"
	AdminActionPause       = "PAUSE_REWARDS"
	AdminActionResume      = "RESUME_REWARDS"
	AdminActionRetry       = "RETRY_FAILED_TRANSFERS"
	AdminActionGrantRole   = "GRANT_ROLE"
)

// AdminAction records admin actions for audit trail. Rows are never updated.
type AdminAction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AdminID      string    `gorm:"size:128;not null;index" json:"admin_id"`
	Action       string    `gorm:"size:100;not null" json:"action"`
	TargetUserID string    `gorm:"size:128;index" json:"target_user_id,omitempty"`
	ResourceID   string    `gorm:"size:64" json:"resource_id,omitempty"`
	Reason       string    `gorm:"type:text" json:"reason,omitempty"`
	Details      JSONB     `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AdminAction) TableName() string {
	return "admin_actions"
}

// RewardConfigDocument stores versions of the halving configuration as JSON documents
type RewardConfigDocument struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Document  string    `gorm:"type:text;not null" json:"document"`
	CreatedBy string    `gorm:"size:128" json:"created_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (RewardConfigDocument) TableName() string {
	return "reward_config_documents"
}
