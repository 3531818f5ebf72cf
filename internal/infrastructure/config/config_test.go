package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_DATABASE_DRIVER",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_SQLITE_PATH",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_LEDGER_TOLERANCE_PERCENTAGE",
	"ERP_LEDGER_TOLERANCE_MAX_AMOUNT",
	"ERP_LEDGER_LOCK_BACKEND",
	"ERP_LEDGER_LOCK_TIMEOUT",
	"ERP_LEDGER_LOCK_TTL",
	"ERP_EVENT_IDEMPOTENCY_STORE",
	"ERP_TELEMETRY_SAMPLING_RATIO",
	"ERP_TELEMETRY_DB_LOG_FULL_SQL",
	"ERP_TELEMETRY_PROFILING_ENABLED",
	"ERP_TELEMETRY_PROFILING_ADDRESS",
	"ERP_ARCHIVE_BACKEND",
	"ERP_ARCHIVE_BUCKET",
}

// clearEnv blanks every key the tests touch; viper treats empty values as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "erp-ledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Ledger.TolerancePercentage.Equal(decimal.RequireFromString("0.005")))
		assert.True(t, cfg.Ledger.ToleranceMaxAmount.Equal(decimal.RequireFromString("0.50")))
		assert.Equal(t, LockBackendPostgres, cfg.Ledger.LockBackend)
		assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
		assert.Equal(t, 100, cfg.Event.BatchSize)
		assert.Equal(t, 7*24*time.Hour, cfg.Event.CleanupRetention)
		assert.Equal(t, IdempotencyStoreMemory, cfg.Event.IdempotencyStore)
		assert.Equal(t, 24*time.Hour, cfg.Event.IdempotencyTTL)
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_APP_NAME", "ledger-test")
		t.Setenv("ERP_DATABASE_HOST", "testdb.local")
		t.Setenv("ERP_DATABASE_PORT", "5433")
		t.Setenv("ERP_LEDGER_TOLERANCE_PERCENTAGE", "0.01")
		t.Setenv("ERP_LEDGER_TOLERANCE_MAX_AMOUNT", "1.25")
		t.Setenv("ERP_LEDGER_LOCK_TIMEOUT", "2s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger-test", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "0.01", cfg.Ledger.TolerancePercentage.String())
		assert.Equal(t, "1.25", cfg.Ledger.ToleranceMaxAmount.String())
		assert.Equal(t, 2*time.Second, cfg.Ledger.LockTimeout)
	})

	t.Run("sqlite driver defaults to local scope locks", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_DRIVER", "sqlite")
		t.Setenv("ERP_DATABASE_SQLITE_PATH", ":memory:")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, LockBackendLocal, cfg.Ledger.LockBackend)
		assert.Equal(t, ":memory:", cfg.Database.DSN())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects postgres advisory locks on sqlite", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_DRIVER", "sqlite")
		t.Setenv("ERP_LEDGER_LOCK_BACKEND", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires database.driver=postgres")
	})

	t.Run("rejects malformed tolerance", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_LEDGER_TOLERANCE_PERCENTAGE", "half")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ledger.tolerance_percentage")
	})

	t.Run("rejects tolerance percentage of one or more", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_LEDGER_TOLERANCE_PERCENTAGE", "1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be in [0, 1)")
	})

	t.Run("redis lock ttl must outlive the lock timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_LEDGER_LOCK_BACKEND", "redis")
		t.Setenv("ERP_LEDGER_LOCK_TIMEOUT", "10s")
		t.Setenv("ERP_LEDGER_LOCK_TTL", "5s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ledger.lock_ttl")
	})

	t.Run("rejects unknown idempotency store", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_EVENT_IDEMPOTENCY_STORE", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event.idempotency_store")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates sampling ratio range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_APP_ENV", "production")
		t.Setenv("ERP_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ERP_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects in-process locks in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_LEDGER_LOCK_BACKEND", "local")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock_backend=local")
	})

	t.Run("rejects full SQL tracing in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})
}

func TestLoad_Archive(t *testing.T) {
	t.Run("archive is off by default", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ArchiveBackendNone, cfg.Archive.Backend)
		assert.Equal(t, "chains", cfg.Archive.Prefix)
		assert.Equal(t, "us-east-1", cfg.Archive.Region)
	})

	t.Run("s3 needs a bucket", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_ARCHIVE_BACKEND", "s3")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive.bucket")

		t.Setenv("ERP_ARCHIVE_BUCKET", "ledger-archive")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "ledger-archive", cfg.Archive.Bucket)
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ERP_ARCHIVE_BACKEND", "ftp")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive.backend")
	})
}

func TestLoad_Profiling(t *testing.T) {
	clearEnv(t)
	t.Setenv("ERP_TELEMETRY_PROFILING_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profiling_address")

	t.Setenv("ERP_TELEMETRY_PROFILING_ADDRESS", "http://pyroscope:4040")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.ProfilingEnabled)
	assert.Contains(t, cfg.Telemetry.ProfilingTypes, "cpu")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: DriverSQLite, SQLitePath: "/var/lib/ledger.db"}
		assert.Equal(t, "/var/lib/ledger.db", cfg.DSN())
	})
}
