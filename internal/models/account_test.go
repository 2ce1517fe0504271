package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlockAtUsesCalendarYears(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		want    time.Time
	}{
		{
			name:    "crosses a leap day",
			created: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			want:    time.Date(2028, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "no leap day in range",
			created: time.Date(2029, 6, 15, 8, 30, 0, 0, time.UTC),
			want:    time.Date(2031, 6, 15, 8, 30, 0, 0, time.UTC),
		},
		{
			name:    "created on a leap day",
			created: time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC),
			want:    time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnlockAt(tt.created))
		})
	}
}

func TestAttemptBudgetGrowsPerRetryRound(t *testing.T) {
	transfer := &PendingTransfer{}
	assert.Equal(t, MaxTransferAttempts, transfer.AttemptBudget())

	transfer.RetryRound = 2
	assert.Equal(t, 3*MaxTransferAttempts, transfer.AttemptBudget())
}
