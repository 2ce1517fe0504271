package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reward-ledger/internal/config"
	"reward-ledger/internal/models"
)

var DB *gorm.DB

// Connect establishes a connection to the configured database
func Connect(cfg *config.Config) error {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Database.Driver {
	case "sqlite":
		db, err = OpenSQLite(cfg.Database.Path)
	default:
		db, err = gorm.Open(postgres.Open(cfg.GetDSN()), gormConfig())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	log.WithField("driver", cfg.Database.Driver).Info("Database connection established successfully")
	return nil
}

// OpenSQLite opens a pure-Go SQLite database. Writes are serialized on one connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// newGormLogger routes gorm's SQL errors and slow queries through logrus.
// Missing rows are an expected lookup result here and are not logged.
func newGormLogger() logger.Interface {
	return logger.New(log.StandardLogger(), logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Error,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   newGormLogger(),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates or updates the ledger tables on db
func Migrate(db *gorm.DB) error {
	ledgerModels := []interface{}{
		&models.UserAccount{},
		&models.LockRecord{},
		&models.RewardLogEntry{},
		&models.PendingTransfer{},
		&models.SystemMetrics{},
		&models.EventTypeMetric{},
	}
	for _, model := range ledgerModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	adminModels := []interface{}{
		&models.AdminUser{},
		&models.AdminAction{},
		&models.RewardConfigDocument{},
	}
	for _, model := range adminModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Warnf("Warning: migration issue for %T: %v", model, err)
		}
	}

	log.Info("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
