package main

import (
	"flag"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/config"
	"reward-ledger/internal/database"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the versioned *.up.sql and *.down.sql files")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("Migrations target PostgreSQL, DB_DRIVER is %q", cfg.Database.Driver)
	}

	// Tables come from the models; the SQL files add what gorm tags cannot express.
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := database.RunMigrations(database.GetDB(), *dir); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
