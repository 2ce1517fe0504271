package database

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reward-ledger/internal/models"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	out := log.StandardLogger().Out
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(out) })
	return &buf
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	db, err := OpenSQLite("file:gorm_logger?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	buf := captureLogs(t)

	var entry models.RewardLogEntry
	err = db.Where("idempotency_key = ?", "missing").First(&entry).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotContains(t, buf.String(), "record not found")

	err = db.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestMigrateCreatesLedgerTables(t *testing.T) {
	db, err := OpenSQLite("file:migrate_tables?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, model := range []interface{}{
		&models.UserAccount{},
		&models.LockRecord{},
		&models.RewardLogEntry{},
		&models.PendingTransfer{},
		&models.SystemMetrics{},
	} {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, db.Migrator().HasColumn(&models.PendingTransfer{}, "retry_round"))
	assert.True(t, db.Migrator().HasColumn(&models.SystemMetrics{}, "rewards_paused"))
}
