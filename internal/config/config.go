package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdusco/linkpay/internal/money"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Defaults for the fraud, ledger and settlement policies. Every threshold
// the service enforces is read from Config, which falls back to these.
const (
	// DefaultBanThreshold is the fraud score at which an owner is banned.
	DefaultBanThreshold = 50
	// DefaultSelfClickPenalty is added when the visitor IP is the owner's
	// last login IP.
	DefaultSelfClickPenalty = 10
	// DefaultRateAbusePenalty is added on top of the self-click penalty when
	// the owner's own IP is also over the hourly click limit.
	DefaultRateAbusePenalty = 5
	// DefaultHourlyClickLimit is the number of monetized clicks one IP may
	// make across all links within an hour before further clicks are unpaid.
	DefaultHourlyClickLimit = 15

	DefaultImpressionWindow = 24 * time.Hour
	DefaultPayoutTokenTTL   = 5 * time.Minute
	DefaultInterstitial     = 5 * time.Second

	DefaultMinPayout      = "700.00"
	DefaultCommissionRate = "0.10"

	// DefaultVerifyRatePerMinute bounds /verify-view calls per caller IP.
	DefaultVerifyRatePerMinute = 30
)

type Config struct {
	Host        string `mapstructure:"HOST"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	Debug       bool   `mapstructure:"DEBUG"`
	TrustProxy  bool   `mapstructure:"TRUST_PROXY"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`
	TokenSecret   string `mapstructure:"TOKEN_SECRET"`
	SnowflakeNode int64  `mapstructure:"SNOWFLAKE_NODE"`

	PayoutTokenTTL    time.Duration `mapstructure:"PAYOUT_TOKEN_TTL"`
	InterstitialDelay time.Duration `mapstructure:"INTERSTITIAL_DELAY"`
	ImpressionWindow  time.Duration `mapstructure:"IMPRESSION_WINDOW"`

	BanThreshold     int `mapstructure:"FRAUD_BAN_THRESHOLD"`
	SelfClickPenalty int `mapstructure:"FRAUD_SELF_CLICK_PENALTY"`
	RateAbusePenalty int `mapstructure:"FRAUD_RATE_ABUSE_PENALTY"`
	HourlyClickLimit int `mapstructure:"FRAUD_HOURLY_CLICK_LIMIT"`

	MinPayoutRaw      string `mapstructure:"PAYOUT_MIN_BALANCE"`
	CommissionRateRaw string `mapstructure:"PAYOUT_COMMISSION_RATE"`

	VerifyRatePerMinute int `mapstructure:"VERIFY_RATE_PER_MINUTE"`

	MinPayout      money.Micros    `mapstructure:"-"`
	CommissionRate decimal.Decimal `mapstructure:"-"`
}

func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("HOST", "localhost")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "sqlite://linkpay.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEBUG", false)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("SNOWFLAKE_NODE", 1)
	v.SetDefault("PAYOUT_TOKEN_TTL", DefaultPayoutTokenTTL)
	v.SetDefault("INTERSTITIAL_DELAY", DefaultInterstitial)
	v.SetDefault("IMPRESSION_WINDOW", DefaultImpressionWindow)
	v.SetDefault("FRAUD_BAN_THRESHOLD", DefaultBanThreshold)
	v.SetDefault("FRAUD_SELF_CLICK_PENALTY", DefaultSelfClickPenalty)
	v.SetDefault("FRAUD_RATE_ABUSE_PENALTY", DefaultRateAbusePenalty)
	v.SetDefault("FRAUD_HOURLY_CLICK_LIMIT", DefaultHourlyClickLimit)
	v.SetDefault("PAYOUT_MIN_BALANCE", DefaultMinPayout)
	v.SetDefault("PAYOUT_COMMISSION_RATE", DefaultCommissionRate)
	v.SetDefault("VERIFY_RATE_PER_MINUTE", DefaultVerifyRatePerMinute)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	minPayout, err := money.Parse(c.MinPayoutRaw)
	if err != nil {
		return fmt.Errorf("PAYOUT_MIN_BALANCE: %w", err)
	}
	c.MinPayout = minPayout

	rate, err := decimal.NewFromString(strings.TrimSpace(c.CommissionRateRaw))
	if err != nil {
		return fmt.Errorf("PAYOUT_COMMISSION_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PAYOUT_COMMISSION_RATE must be between 0 and 1, got %s", rate)
	}
	c.CommissionRate = rate

	if c.BanThreshold <= 0 {
		return fmt.Errorf("FRAUD_BAN_THRESHOLD must be positive, got %d", c.BanThreshold)
	}
	if c.HourlyClickLimit <= 0 {
		return fmt.Errorf("FRAUD_HOURLY_CLICK_LIMIT must be positive, got %d", c.HourlyClickLimit)
	}
	if c.VerifyRatePerMinute <= 0 {
		return fmt.Errorf("VERIFY_RATE_PER_MINUTE must be positive, got %d", c.VerifyRatePerMinute)
	}
	if c.PayoutTokenTTL <= 0 {
		return fmt.Errorf("PAYOUT_TOKEN_TTL must be positive, got %s", c.PayoutTokenTTL)
	}
	return nil
}
