package config

import (
	"testing"
	"time"

	"github.com/abdusco/linkpay/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Default Values", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, DefaultBanThreshold, cfg.BanThreshold)
		assert.Equal(t, DefaultHourlyClickLimit, cfg.HourlyClickLimit)
		assert.Equal(t, 24*time.Hour, cfg.ImpressionWindow)
		assert.Equal(t, 5*time.Minute, cfg.PayoutTokenTTL)
		assert.Equal(t, money.MustParse("700"), cfg.MinPayout)
		assert.Equal(t, "0.1", cfg.CommissionRate.String())
	})

	t.Run("Environment Variables", func(t *testing.T) {
		t.Setenv("PORT", "9999")
		t.Setenv("FRAUD_BAN_THRESHOLD", "20")
		t.Setenv("PAYOUT_TOKEN_TTL", "90s")
		t.Setenv("PAYOUT_MIN_BALANCE", "500.50")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 20, cfg.BanThreshold)
		assert.Equal(t, 90*time.Second, cfg.PayoutTokenTTL)
		assert.Equal(t, money.MustParse("500.50"), cfg.MinPayout)
	})

	t.Run("Invalid Commission Rate", func(t *testing.T) {
		t.Setenv("PAYOUT_COMMISSION_RATE", "1.5")

		_, err := Load()
		assert.Error(t, err)
	})
}
