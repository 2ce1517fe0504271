package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/audit"
	"reward-ledger/internal/auth"
	"reward-ledger/internal/blockchain"
	"reward-ledger/internal/config"
	"reward-ledger/internal/database"
	"reward-ledger/internal/handlers"
	"reward-ledger/internal/jobs"
	"reward-ledger/internal/metrics"
	"reward-ledger/internal/repository"
	"reward-ledger/internal/rewardconfig"
	"reward-ledger/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret,
		auth.WithTokenIssuer(cfg.App.TokenIssuer),
		auth.WithTokenTTL(cfg.App.TokenTTL),
	)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()
	repo := repository.NewRepository(db)

	var configs rewardconfig.Store
	if cfg.Rewards.ConfigSource == "db" {
		configs = rewardconfig.NewDBStore(db)
	} else {
		configs = rewardconfig.NewFileStore(cfg.Rewards.ConfigPath)
	}
	if _, err := configs.Load(context.Background()); err != nil {
		log.WithError(err).Warn("Reward configuration not loadable yet, grants will fail until it is")
	}

	var publisher audit.Publisher = audit.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.WithField("brokers", cfg.Kafka.Brokers).Info("Publishing ledger events to Kafka")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	deps := services.Deps{
		Repo:      repo,
		Configs:   configs,
		Publisher: publisher,
		Metrics:   ledgerMetrics,
		Clock:     services.SystemClock{},
	}

	// Initialize the token ledger when an operator key is configured
	var diagnoser handlers.Diagnoser
	if cfg.Solana.OperatorPrivateKey != "" && cfg.Solana.TokenMintAddress != "" {
		tokenLedger, err := blockchain.NewTokenLedger(blockchain.LedgerOptions{
			Network:            cfg.Solana.Network,
			RPCURL:             cfg.Solana.RPCURL,
			TokenMintAddress:   cfg.Solana.TokenMintAddress,
			TokenDecimals:      cfg.Solana.TokenDecimals,
			OperatorPrivateKey: cfg.Solana.OperatorPrivateKey,
			SkipPreflight:      cfg.Solana.SkipPreflight,
		})
		if err != nil {
			log.Fatalf("Failed to initialize token ledger: %v", err)
		}
		deps.Ledger = tokenLedger
		diagnoser = tokenLedger
		log.WithFields(log.Fields{
			"network":  cfg.Solana.Network,
			"operator": tokenLedger.OperatorAddress(),
		}).Info("Token ledger initialized")
	} else {
		log.Warn("SOLANA_OPERATOR_PRIVATE_KEY or SOLANA_TOKEN_MINT not set, transfers stay queued")
	}

	// Initialize services
	rewardService := services.NewRewardService(deps, cfg.Rewards.Paused)
	unlockService := services.NewUnlockService(deps, cfg.Jobs.UnlockBatchSize)
	settlementService := services.NewSettlementService(deps, cfg.Jobs.SettlementBatch)
	adminService := services.NewAdminService(deps, rewardService, settlementService)
	accountService := services.NewAccountService(deps)

	// Start background jobs
	scheduler := jobs.NewScheduler(ledgerMetrics)
	schedules := jobs.LedgerSchedules{
		Unlock:     cfg.Jobs.UnlockSchedule,
		Settlement: cfg.Jobs.SettlementSchedule,
		Retry:      cfg.Jobs.RetrySchedule,
		Cleanup:    cfg.Jobs.CleanupSchedule,
		RetryLimit: cfg.Jobs.RetryLimit,
		Retention:  cfg.Jobs.TransferRetention,
	}
	if deps.Ledger == nil {
		// trigger-only until a ledger is configured
		schedules.Settlement = ""
		schedules.Retry = ""
	}
	if err := jobs.RegisterLedgerJobs(scheduler, unlockService, settlementService, schedules); err != nil {
		log.Fatalf("Failed to register jobs: %v", err)
	}
	scheduler.Start()

	router := handlers.SetupRouter(handlers.RouterDeps{
		Rewards:        rewardService,
		Accounts:       accountService,
		Admin:          adminService,
		Settlement:     settlementService,
		Jobs:           scheduler,
		Diagnoser:      diagnoser,
		Gatherer:       registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Clock:          deps.Clock,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()

	log.Info("Server exited")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
