package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Solana   SolanaConfig
	Kafka    KafkaConfig
	Rewards  RewardsConfig
	Jobs     JobsConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Path     string // sqlite file path
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret   string
	TokenIssuer string
	TokenTTL    time.Duration
}

// SolanaConfig holds settlement network settings
type SolanaConfig struct {
	Network            string
	RPCURL             string
	TokenMintAddress   string
	TokenDecimals      uint8
	OperatorPrivateKey string
	SkipPreflight      bool
}

// KafkaConfig holds audit log broker settings
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// RewardsConfig holds reward application settings
type RewardsConfig struct {
	Paused       bool
	ConfigSource string // file or db
	ConfigPath   string
}

// JobsConfig holds scheduler settings
type JobsConfig struct {
	UnlockSchedule     string
	SettlementSchedule string
	RetrySchedule      string
	CleanupSchedule    string
	UnlockBatchSize    int
	SettlementBatch    int
	RetryLimit         int
	TransferRetention  time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "reward_ledger"),
			Path:     getEnv("DB_PATH", "reward_ledger.db"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		App: AppConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			TokenIssuer: getEnv("JWT_ISSUER", "reward-ledger"),
			TokenTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Solana: SolanaConfig{
			Network:            getEnv("SOLANA_NETWORK", "devnet"),
			RPCURL:             getEnv("SOLANA_RPC_URL", ""),
			TokenMintAddress:   getEnv("SOLANA_TOKEN_MINT", ""),
			TokenDecimals:      uint8(getEnvInt("SOLANA_TOKEN_DECIMALS", 8)),
			OperatorPrivateKey: getEnv("SOLANA_OPERATOR_PRIVATE_KEY", ""),
			SkipPreflight:      getEnvBool("SOLANA_SKIP_PREFLIGHT", false),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", ""),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "reward-ledger"),
		},
		Rewards: RewardsConfig{
			Paused:       getEnvBool("REWARDS_PAUSED", false),
			ConfigSource: getEnv("REWARD_CONFIG_SOURCE", "file"),
			ConfigPath:   getEnv("REWARD_CONFIG_PATH", "config/rewards.yaml"),
		},
		Jobs: JobsConfig{
			UnlockSchedule:     getEnv("UNLOCK_SCHEDULE", "@daily"),
			SettlementSchedule: getEnv("SETTLEMENT_SCHEDULE", "@every 2m"),
			RetrySchedule:      getEnv("RETRY_SCHEDULE", "@every 6h"),
			CleanupSchedule:    getEnv("CLEANUP_SCHEDULE", "@weekly"),
			UnlockBatchSize:    getEnvInt("UNLOCK_BATCH_SIZE", 500),
			SettlementBatch:    getEnvInt("SETTLEMENT_BATCH_SIZE", 50),
			RetryLimit:         getEnvInt("RETRY_FAILED_LIMIT", 100),
			TransferRetention:  getEnvDuration("TRANSFER_RETENTION", 30*24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Database.Driver)
	}

	if config.Rewards.ConfigSource != "file" && config.Rewards.ConfigSource != "db" {
		return nil, fmt.Errorf("unsupported REWARD_CONFIG_SOURCE %q", config.Rewards.ConfigSource)
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
