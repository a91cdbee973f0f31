/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trustvest/settlement-service/internal/app"
	"github.com/trustvest/settlement-service/internal/domain"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables. Monetary values are in
// cents.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`

	DepositMinCents     int64 `mapstructure:"DEPOSIT_MIN_CENTS"`
	DepositMaxCents     int64 `mapstructure:"DEPOSIT_MAX_CENTS"`
	DepositDailyCents   int64 `mapstructure:"DEPOSIT_DAILY_CENTS"`
	DepositMonthlyCents int64 `mapstructure:"DEPOSIT_MONTHLY_CENTS"`

	WithdrawalMinCents     int64 `mapstructure:"WITHDRAWAL_MIN_CENTS"`
	WithdrawalMaxCents     int64 `mapstructure:"WITHDRAWAL_MAX_CENTS"`
	WithdrawalDailyCents   int64 `mapstructure:"WITHDRAWAL_DAILY_CENTS"`
	WithdrawalMonthlyCents int64 `mapstructure:"WITHDRAWAL_MONTHLY_CENTS"`

	RiskLargeAmountCents  int64 `mapstructure:"RISK_LARGE_AMOUNT_CENTS"`
	RiskNewAccountDays    int   `mapstructure:"RISK_NEW_ACCOUNT_DAYS"`
	RiskRecentWindowHours int   `mapstructure:"RISK_RECENT_WINDOW_HOURS"`
	RiskRecentMax         int   `mapstructure:"RISK_RECENT_MAX"`

	ReferralPercentBps int64 `mapstructure:"REFERRAL_PERCENT_BPS"`
	ReferralCapCents   int64 `mapstructure:"REFERRAL_CAP_CENTS"`

	CancelWindowMinutes          int `mapstructure:"CANCEL_WINDOW_MINUTES"`
	WithdrawalRateLimitPerMinute int `mapstructure:"WITHDRAWAL_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "settlement:rate_limit")
	viper.SetDefault("DEPOSIT_MIN_CENTS", 100)
	viper.SetDefault("DEPOSIT_MAX_CENTS", 10_000_000)
	viper.SetDefault("DEPOSIT_DAILY_CENTS", 50_000_000)
	viper.SetDefault("DEPOSIT_MONTHLY_CENTS", 500_000_000)
	viper.SetDefault("WITHDRAWAL_MIN_CENTS", 500)
	viper.SetDefault("WITHDRAWAL_MAX_CENTS", 5_000_000)
	viper.SetDefault("WITHDRAWAL_DAILY_CENTS", 10_000_000)
	viper.SetDefault("WITHDRAWAL_MONTHLY_CENTS", 100_000_000)
	viper.SetDefault("RISK_LARGE_AMOUNT_CENTS", 1_000_000)
	viper.SetDefault("RISK_NEW_ACCOUNT_DAYS", 30)
	viper.SetDefault("RISK_RECENT_WINDOW_HOURS", 24)
	viper.SetDefault("RISK_RECENT_MAX", 2)
	viper.SetDefault("REFERRAL_PERCENT_BPS", 1_000)
	viper.SetDefault("REFERRAL_CAP_CENTS", 10_000)
	viper.SetDefault("CANCEL_WINDOW_MINUTES", 60)
	viper.SetDefault("WITHDRAWAL_RATE_LIMIT_PER_MINUTE", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("DEPOSIT_MIN_CENTS")
	_ = viper.BindEnv("DEPOSIT_MAX_CENTS")
	_ = viper.BindEnv("DEPOSIT_DAILY_CENTS")
	_ = viper.BindEnv("DEPOSIT_MONTHLY_CENTS")
	_ = viper.BindEnv("WITHDRAWAL_MIN_CENTS")
	_ = viper.BindEnv("WITHDRAWAL_MAX_CENTS")
	_ = viper.BindEnv("WITHDRAWAL_DAILY_CENTS")
	_ = viper.BindEnv("WITHDRAWAL_MONTHLY_CENTS")
	_ = viper.BindEnv("RISK_LARGE_AMOUNT_CENTS")
	_ = viper.BindEnv("RISK_NEW_ACCOUNT_DAYS")
	_ = viper.BindEnv("RISK_RECENT_WINDOW_HOURS")
	_ = viper.BindEnv("RISK_RECENT_MAX")
	_ = viper.BindEnv("REFERRAL_PERCENT_BPS")
	_ = viper.BindEnv("REFERRAL_CAP_CENTS")
	_ = viper.BindEnv("CANCEL_WINDOW_MINUTES")
	_ = viper.BindEnv("WITHDRAWAL_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "settlement:rate_limit"
	}

	if config.ReferralPercentBps < 0 {
		log.Printf("level=warn component=config msg=\"negative referral percent configured; coercing to zero\" percent_bps=%d", config.ReferralPercentBps)
		config.ReferralPercentBps = 0
	}
	if config.ReferralCapCents < 0 {
		log.Printf("level=warn component=config msg=\"negative referral cap configured; coercing to zero\" cap_cents=%d", config.ReferralCapCents)
		config.ReferralCapCents = 0
	}
	if config.CancelWindowMinutes <= 0 {
		config.CancelWindowMinutes = 60
	}
	if config.WithdrawalRateLimitPerMinute < 0 {
		config.WithdrawalRateLimitPerMinute = 0
	}

	return
}

// Policies translates the flat environment configuration into the engine's
// policy bundle.
func (c Config) Policies() app.Policies {
	return app.Policies{
		Limits: map[domain.Kind]app.LimitPolicy{
			domain.KindDeposit: {
				MinPerTx:   c.DepositMinCents,
				MaxPerTx:   c.DepositMaxCents,
				DailyMax:   c.DepositDailyCents,
				MonthlyMax: c.DepositMonthlyCents,
			},
			domain.KindWithdrawal: {
				MinPerTx:   c.WithdrawalMinCents,
				MaxPerTx:   c.WithdrawalMaxCents,
				DailyMax:   c.WithdrawalDailyCents,
				MonthlyMax: c.WithdrawalMonthlyCents,
			},
		},
		Risk: app.RiskPolicy{
			LargeAmountThreshold: c.RiskLargeAmountCents,
			NewAccountAge:        time.Duration(c.RiskNewAccountDays) * 24 * time.Hour,
			RecentWindow:         time.Duration(c.RiskRecentWindowHours) * time.Hour,
			RecentMax:            c.RiskRecentMax,
		},
		Referral: app.ReferralPolicy{
			PercentBps: c.ReferralPercentBps,
			CapCents:   c.ReferralCapCents,
		},
		CancelWindow:         time.Duration(c.CancelWindowMinutes) * time.Minute,
		WithdrawalRatePerMin: c.WithdrawalRateLimitPerMinute,
	}
}
