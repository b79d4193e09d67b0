/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix        string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	PaymentAPIBaseURL     string `mapstructure:"PAYMENT_API_BASE_URL"`
	PaymentAPIKey         string `mapstructure:"PAYMENT_API_KEY"`
	PaymentTimeoutSeconds int    `mapstructure:"PAYMENT_TIMEOUT_SECONDS"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes         int    `mapstructure:"JWT_TTL_MINUTES"`
	LockoutThreshold      int    `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutSeconds        int    `mapstructure:"LOCKOUT_SECONDS"`
	RateLimitPerMinute    int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBlockSeconds int    `mapstructure:"RATE_LIMIT_BLOCK_SECONDS"`
	CodeTTLMinutes        int    `mapstructure:"CODE_TTL_MINUTES"`
	CodeLength            int    `mapstructure:"CODE_LENGTH"`
	CodeSweepCron         string `mapstructure:"CODE_SWEEP_CRON"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "wallet")
	viper.SetDefault("PAYMENT_TIMEOUT_SECONDS", 15)
	viper.SetDefault("JWT_TTL_MINUTES", 60)
	viper.SetDefault("LOCKOUT_THRESHOLD", 5)
	viper.SetDefault("LOCKOUT_SECONDS", 60)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	viper.SetDefault("RATE_LIMIT_BLOCK_SECONDS", 60)
	viper.SetDefault("CODE_TTL_MINUTES", 10)
	viper.SetDefault("CODE_LENGTH", 6)
	viper.SetDefault("CODE_SWEEP_CRON", "@every 5m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_API_BASE_URL")
	_ = viper.BindEnv("PAYMENT_API_KEY")
	_ = viper.BindEnv("PAYMENT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_TTL_MINUTES")
	_ = viper.BindEnv("LOCKOUT_THRESHOLD")
	_ = viper.BindEnv("LOCKOUT_SECONDS")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RATE_LIMIT_BLOCK_SECONDS")
	_ = viper.BindEnv("CODE_TTL_MINUTES")
	_ = viper.BindEnv("CODE_LENGTH")
	_ = viper.BindEnv("CODE_SWEEP_CRON")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "wallet"
	}

	if config.PaymentTimeoutSeconds <= 0 {
		config.PaymentTimeoutSeconds = 15
	}
	if config.JWTTTLMinutes <= 0 {
		config.JWTTTLMinutes = 60
	}
	if config.LockoutThreshold <= 0 {
		config.LockoutThreshold = 5
	}
	if config.LockoutSeconds <= 0 {
		config.LockoutSeconds = 60
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 100
	}
	if config.RateLimitBlockSeconds <= 0 {
		config.RateLimitBlockSeconds = 60
	}
	if config.CodeTTLMinutes <= 0 {
		config.CodeTTLMinutes = 10
	}
	if config.CodeLength < 4 || config.CodeLength > 10 {
		log.Printf("level=warn component=config msg=\"code length out of range; using default\" value=%d", config.CodeLength)
		config.CodeLength = 6
	}
	if strings.TrimSpace(config.CodeSweepCron) == "" {
		config.CodeSweepCron = "@every 5m"
	}

	return
}
