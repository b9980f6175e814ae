package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REAPER_INTERVAL", "")
	t.Setenv("REAPER_LEASE_TTL", "")
	t.Setenv("TX_MAX_RETRIES", "")
	t.Setenv("KAFKA_BROKER", "")

	cfg := Load()
	assert.Equal(t, ":8082", cfg.OrderSvcAddr)
	assert.Equal(t, 5*time.Minute, cfg.ReaperInterval)
	assert.Equal(t, 10*time.Minute, cfg.ReaperLeaseTTL)
	assert.Equal(t, 24*time.Hour, cfg.UnpaidOrderTimeout)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, "order-events", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBroker)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REAPER_INTERVAL", "30s")
	t.Setenv("UNPAID_ORDER_TIMEOUT", "2h")
	t.Setenv("TX_MAX_RETRIES", "7")
	t.Setenv("ORDER_RATE_LIMIT", "2.5")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 2*time.Hour, cfg.UnpaidOrderTimeout)
	assert.Equal(t, 7, cfg.TxMaxRetries)
	assert.InDelta(t, 2.5, cfg.OrderRateLimit, 1e-9)
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("REAPER_INTERVAL", "soon")
	t.Setenv("TX_MAX_RETRIES", "many")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.ReaperInterval)
	assert.Equal(t, 3, cfg.TxMaxRetries)
}
