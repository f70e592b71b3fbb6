package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads defaults for the memory driver", func(t *testing.T) {
		t.Setenv("CHEQUE_STORE_DRIVER", "memory")
		t.Setenv("DATABASE_URL", "")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "chequebook", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, "8080", cfg.HTTP.Port)
		assert.Equal(t, int32(10), cfg.Database.MaxConns)
		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialInterval)
		assert.Equal(t, 10*time.Minute, cfg.Redis.BranchTTL)
		assert.Equal(t, int64(100_000), cfg.Print.MaxBatchUnits)
		assert.False(t, cfg.RedisEnabled())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CHEQUE_DATABASE_URL", "postgres://u:p@db:5432/cheques")
		t.Setenv("CHEQUE_HTTP_PORT", "9090")
		t.Setenv("CHEQUE_RETRY_MAX_ATTEMPTS", "5")
		t.Setenv("CHEQUE_REDIS_ADDR", "cache:6379")
		t.Setenv("CHEQUE_LOG_FORMAT", "json")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "postgres", cfg.Store.Driver)
		assert.Equal(t, "postgres://u:p@db:5432/cheques", cfg.Database.URL)
		assert.Equal(t, "9090", cfg.HTTP.Port)
		assert.Equal(t, 5, cfg.Retry.MaxAttempts)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.True(t, cfg.RedisEnabled())
	})

	t.Run("rejects a batch limit above the API ceiling", func(t *testing.T) {
		t.Setenv("CHEQUE_STORE_DRIVER", "memory")
		t.Setenv("CHEQUE_PRINT_MAX_BATCH_UNITS", "2000000")

		_, err := Load()
		assert.ErrorContains(t, err, "print.max_batch_units")
	})

	t.Run("falls back to DATABASE_URL", func(t *testing.T) {
		t.Setenv("CHEQUE_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "postgres://localhost/legacy")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/legacy", cfg.Database.URL)
	})

	t.Run("postgres driver requires a database url", func(t *testing.T) {
		t.Setenv("CHEQUE_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "")

		_, err := Load()
		assert.ErrorContains(t, err, "database.url")
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("CHEQUE_STORE_DRIVER", "sqlite")

		_, err := Load()
		assert.ErrorContains(t, err, "store.driver")
	})
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{App: AppConfig{Env: "production"}, Store: StoreConfig{Driver: "postgres"}, Database: DatabaseConfig{URL: "postgres://x"}}
	applyDefaults(cfg)

	assert.ErrorContains(t, cfg.validate(), "jwt_secret")

	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.validate())

	cfg.HTTP.CORSAllowOrigins = []string{"*"}
	assert.ErrorContains(t, cfg.validate(), "cors")

	cfg.HTTP.CORSAllowOrigins = nil
	cfg.Store.Driver = "memory"
	assert.ErrorContains(t, cfg.validate(), "memory")
}
