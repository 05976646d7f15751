package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notice-dispatch/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/notices")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, config.DriverPostgres, cfg.DatabaseDriver)
	assert.False(t, cfg.QueueAllByDefault)
	assert.Equal(t, 50, cfg.DrainBatchSize)
	assert.Equal(t, 15*time.Minute, cfg.DrainClaimTTL)
	assert.Equal(t, config.MailLog, cfg.MailTransport)
	assert.Equal(t, "http://localhost:8080/notices/settings", cfg.NoticesURL())
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:notices.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("QUEUE_ALL_BY_DEFAULT", "true")
	t.Setenv("DRAIN_BATCH_SIZE", "10")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverSQLite, cfg.DatabaseDriver)
	assert.True(t, cfg.QueueAllByDefault)
	assert.Equal(t, 10, cfg.DrainBatchSize)
}

func TestValidate(t *testing.T) {
	base := config.Config{
		DatabaseDriver: config.DriverPostgres,
		MailTransport:  config.MailLog,
		DrainBatchSize: 1,
	}

	t.Run("valid", func(t *testing.T) {
		c := base
		require.NoError(t, c.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		c := base
		c.DatabaseDriver = "mysql"
		require.Error(t, c.Validate())
	})

	t.Run("unknown transport", func(t *testing.T) {
		c := base
		c.MailTransport = "pigeon"
		require.Error(t, c.Validate())
	})

	t.Run("zero batch size", func(t *testing.T) {
		c := base
		c.DrainBatchSize = 0
		require.Error(t, c.Validate())
	})
}
