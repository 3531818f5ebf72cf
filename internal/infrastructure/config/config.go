package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	Ledger    LedgerConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string // file path or ":memory:" when Driver is sqlite
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventConfig holds outbox relay configuration
type EventConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupRetention time.Duration // sent entries older than this are purged
	IdempotencyStore string        // "redis" or "memory"
	IdempotencyTTL   time.Duration
}

// Idempotency store backends
const (
	IdempotencyStoreRedis  = "redis"
	IdempotencyStoreMemory = "memory"
)

// Scope lock backends
const (
	LockBackendPostgres = "postgres" // pg_advisory_xact_lock, released at commit
	LockBackendRedis    = "redis"    // bsm/redislock, for multi-instance deployments
	LockBackendLocal    = "local"    // in-process keyed mutex
)

// LedgerConfig holds posting and allocation settings
type LedgerConfig struct {
	// System tolerance defaults, used when a tenant has no settings row
	TolerancePercentage decimal.Decimal
	ToleranceMaxAmount  decimal.Decimal
	LockBackend         string
	LockTimeout         time.Duration // max wait for a row or scope lock
	LockTTL             time.Duration // redis lock expiry, must outlive the transaction
}

// Chain archive backends
const (
	ArchiveBackendNone   = "none"
	ArchiveBackendS3     = "s3"     // any S3-compatible store (AWS S3, MinIO, RustFS)
	ArchiveBackendMemory = "memory" // process-local, for development
)

// ArchiveConfig holds the object store used for chain exports
type ArchiveConfig struct {
	Backend      string
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string // key prefix inside the bucket
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool    // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration
	DBPoolMetrics     bool // Export connection pool gauges
	LogsEnabled       bool // Export zap records over OTLP as well
	LogsLevel         string

	ProfilingEnabled   bool   // Pyroscope continuous profiling
	ProfilingAddress   string // e.g. http://pyroscope:4040
	ProfilingTypes     []string
	ProfilingAuthUser  string
	ProfilingAuthToken string
	SpanProfiles       bool // Attach span ids to CPU profiles
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	tolerancePct, err := decimalSetting(v, "ledger.tolerance_percentage")
	if err != nil {
		return nil, err
	}
	toleranceMax, err := decimalSetting(v, "ledger.tolerance_max_amount")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			IdempotencyStore: v.GetString("event.idempotency_store"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
		},
		Ledger: LedgerConfig{
			TolerancePercentage: tolerancePct,
			ToleranceMaxAmount:  toleranceMax,
			LockBackend:         v.GetString("ledger.lock_backend"),
			LockTimeout:         v.GetDuration("ledger.lock_timeout"),
			LockTTL:             v.GetDuration("ledger.lock_ttl"),
		},
		Archive: ArchiveConfig{
			Backend:      v.GetString("archive.backend"),
			Endpoint:     v.GetString("archive.endpoint"),
			Region:       v.GetString("archive.region"),
			Bucket:       v.GetString("archive.bucket"),
			AccessKey:    v.GetString("archive.access_key"),
			SecretKey:    v.GetString("archive.secret_key"),
			UseSSL:       v.GetBool("archive.use_ssl"),
			UsePathStyle: v.GetBool("archive.use_path_style"),
			Prefix:       v.GetString("archive.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			DBPoolMetrics:     v.GetBool("telemetry.db_pool_metrics"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsLevel:         v.GetString("telemetry.logs_level"),

			ProfilingEnabled:   v.GetBool("telemetry.profiling_enabled"),
			ProfilingAddress:   v.GetString("telemetry.profiling_address"),
			ProfilingTypes:     v.GetStringSlice("telemetry.profiling_types"),
			ProfilingAuthUser:  v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthToken: v.GetString("telemetry.profiling_auth_token"),
			SpanProfiles:       v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decimalSetting reads a decimal from its string form so tolerance
// percentages never pass through float64
func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
	}
	return d, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-ledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "erp"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "ledger.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 7 * 24 * time.Hour
	}
	if cfg.Event.IdempotencyStore == "" {
		cfg.Event.IdempotencyStore = IdempotencyStoreMemory
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Ledger.TolerancePercentage.IsZero() {
		cfg.Ledger.TolerancePercentage = decimal.RequireFromString("0.005")
	}
	if cfg.Ledger.ToleranceMaxAmount.IsZero() {
		cfg.Ledger.ToleranceMaxAmount = decimal.RequireFromString("0.50")
	}
	if cfg.Ledger.LockBackend == "" {
		if cfg.Database.Driver == DriverSQLite {
			cfg.Ledger.LockBackend = LockBackendLocal
		} else {
			cfg.Ledger.LockBackend = LockBackendPostgres
		}
	}
	if cfg.Ledger.LockTimeout == 0 {
		cfg.Ledger.LockTimeout = 5 * time.Second
	}
	if cfg.Ledger.LockTTL == 0 {
		cfg.Ledger.LockTTL = 30 * time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "erp-ledger"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
	if len(cfg.Telemetry.ProfilingTypes) == 0 {
		cfg.Telemetry.ProfilingTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = ArchiveBackendNone
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "chains"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Ledger.TolerancePercentage.IsNegative() || c.Ledger.TolerancePercentage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("ledger.tolerance_percentage must be in [0, 1), got %s", c.Ledger.TolerancePercentage)
	}
	if c.Ledger.ToleranceMaxAmount.IsNegative() {
		return fmt.Errorf("ledger.tolerance_max_amount cannot be negative")
	}
	switch c.Ledger.LockBackend {
	case LockBackendPostgres:
		if c.Database.Driver != DriverPostgres {
			return fmt.Errorf("ledger.lock_backend=postgres requires database.driver=postgres")
		}
	case LockBackendRedis, LockBackendLocal:
	default:
		return fmt.Errorf("ledger.lock_backend must be postgres, redis or local, got %q", c.Ledger.LockBackend)
	}
	if c.Ledger.LockTimeout < 0 {
		return fmt.Errorf("ledger.lock_timeout cannot be negative")
	}
	if c.Ledger.LockBackend == LockBackendRedis && c.Ledger.LockTTL <= c.Ledger.LockTimeout {
		return fmt.Errorf("ledger.lock_ttl (%s) must exceed ledger.lock_timeout (%s)", c.Ledger.LockTTL, c.Ledger.LockTimeout)
	}

	switch c.Event.IdempotencyStore {
	case IdempotencyStoreRedis, IdempotencyStoreMemory:
	default:
		return fmt.Errorf("event.idempotency_store must be redis or memory, got %q", c.Event.IdempotencyStore)
	}

	switch c.Archive.Backend {
	case ArchiveBackendNone, ArchiveBackendMemory:
	case ArchiveBackendS3:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive.backend=s3")
		}
	default:
		return fmt.Errorf("archive.backend must be none, s3 or memory, got %q", c.Archive.Backend)
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingAddress == "" {
		return fmt.Errorf("telemetry.profiling_address is required when profiling is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == DriverSQLite {
			return fmt.Errorf("database.driver=sqlite is not allowed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Ledger.LockBackend == LockBackendLocal {
			return fmt.Errorf("ledger.lock_backend=local cannot serialise multiple instances in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
