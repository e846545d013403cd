// Package config reads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	LogLevel     string
	LogPretty    bool
	DatabasePath string

	LookbackDays     int
	TargetReturn     float64
	TargetVolatility float64
	VaRConfidence    float64
	MaxWeight        float64
	Simulations      int
	Seed             uint64

	MaxCashInvestment float64
	MinBackupBudget   float64

	CronSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/tigro.db"),

		LookbackDays:     getEnvAsInt("LOOKBACK_DAYS", 504),
		TargetReturn:     getEnvAsFloat("TARGET_RETURN", 0.07),
		TargetVolatility: getEnvAsFloat("TARGET_VOLATILITY", 0.20),
		VaRConfidence:    getEnvAsFloat("VAR_CONFIDENCE", 0.97),
		MaxWeight:        getEnvAsFloat("MAX_WEIGHT", 0.20),
		Simulations:      getEnvAsInt("MC_SIMULATIONS", 10000),
		Seed:             uint64(getEnvAsInt("MC_SEED", 42)),

		MaxCashInvestment: getEnvAsFloat("MAX_CASH_INVESTMENT", 10000),
		MinBackupBudget:   getEnvAsFloat("MIN_BACKUP_BUDGET", 1000),

		CronSchedule: getEnv("CRON_SCHEDULE", "0 30 17 * * 1-5"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %d", c.Port)
	}
	if c.LookbackDays < 2 {
		return fmt.Errorf("LOOKBACK_DAYS must be at least 2, got %d", c.LookbackDays)
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		return fmt.Errorf("VAR_CONFIDENCE must be in (0, 1), got %v", c.VaRConfidence)
	}
	if c.TargetVolatility <= 0 {
		return fmt.Errorf("TARGET_VOLATILITY must be positive, got %v", c.TargetVolatility)
	}
	if c.MaxWeight <= 0 || c.MaxWeight > 1 {
		return fmt.Errorf("MAX_WEIGHT must be in (0, 1], got %v", c.MaxWeight)
	}
	if c.Simulations <= 0 {
		return fmt.Errorf("MC_SIMULATIONS must be positive, got %d", c.Simulations)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
