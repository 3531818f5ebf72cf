package main

import (
	"context"
	"fmt"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	appledger "github.com/erp/ledger/internal/application/ledger"
	apppayment "github.com/erp/ledger/internal/application/payment"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/erp/ledger/internal/infrastructure/accounting"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/lock"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/erp/ledger/internal/infrastructure/storage"
	strategyimpl "github.com/erp/ledger/internal/infrastructure/strategy"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired ledger for one command invocation
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *persistence.Database
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	metrics  *telemetry.LedgerMetrics
	pool     *telemetry.DBPoolMetrics
	redis    *redis.Client

	txm        *persistence.TxManager
	locker     shared.ScopeLocker
	bus        *event.InMemoryEventBus
	serializer *event.EventSerializer
	outbox     *event.GormOutboxRepository
	dispatcher *appevent.Dispatcher
	audit      *event.IdempotentHandler
}

// loadConfig reads the configuration and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// openDatabase connects with the gorm logger, the tenant guard and, when
// enabled, DB tracing
func openDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	dbSystem := "postgresql"
	if cfg.Database.Driver == config.DriverSQLite {
		dbSystem = "sqlite"
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))),
		persistence.WithPlugin(tenant.NewGuard("tenant_id")),
		persistence.WithPlugin(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem,
		}, log)),
	)
	if err != nil {
		return nil, err
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

// newApp wires configuration, telemetry, storage, locking and events
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	if err := a.initTelemetry(ctx); err != nil {
		a.Close()
		return nil, err
	}
	ctx = logger.WithRequestID(logger.WithContext(ctx, a.log), uuid.NewString())
	cmd.SetContext(ctx)

	if a.db, err = openDatabase(cfg, a.log); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBPoolMetrics {
		sqlDB, err := a.db.DB.DB()
		if err != nil {
			a.Close()
			return nil, err
		}
		if a.pool, err = telemetry.NewDBPoolMetrics(a.meter.Meter("ledger.db"), sqlDB.Stats); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Database.Driver == config.DriverSQLite {
		if err := a.db.AutoMigrate(); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.txm = persistence.NewTxManager(a.db.DB, cfg.Database.Driver, cfg.Ledger.LockTimeout)

	if cfg.Ledger.LockBackend == config.LockBackendRedis || cfg.Event.IdempotencyStore == config.IdempotencyStoreRedis {
		if a.redis, err = cache.NewRedisClient(ctx, cfg.Redis); err != nil {
			a.Close()
			return nil, err
		}
	}

	if a.locker, err = a.newLocker(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initEvents(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// initTelemetry sets up tracing, metrics and, when enabled, OTLP log
// export. a.log is replaced by the bridged logger.
func (a *app) initTelemetry(ctx context.Context) error {
	var err error
	a.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           a.cfg.Telemetry.Enabled && a.cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: a.cfg.Telemetry.CollectorEndpoint,
		ServiceName:       a.cfg.Telemetry.ServiceName,
		Insecure:          a.cfg.Telemetry.Insecure,
		Level:             a.cfg.Telemetry.LogsLevel,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}
	a.log = a.logs.Bridge(a.log)

	a.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           a.cfg.Telemetry.Enabled,
		CollectorEndpoint: a.cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     a.cfg.Telemetry.SamplingRatio,
		ServiceName:       a.cfg.Telemetry.ServiceName,
		Insecure:          a.cfg.Telemetry.Insecure,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           a.cfg.Telemetry.Enabled,
		CollectorEndpoint: a.cfg.Telemetry.CollectorEndpoint,
		ServiceName:       a.cfg.Telemetry.ServiceName,
		Insecure:          a.cfg.Telemetry.Insecure,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	a.metrics, err = telemetry.NewLedgerMetrics(a.meter.Meter("ledger"))
	if err != nil {
		return fmt.Errorf("failed to register ledger metrics: %w", err)
	}
	return nil
}

// startProfiler starts continuous profiling for long-running commands
func (a *app) startProfiler(component string) error {
	var err error
	a.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           a.cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     a.cfg.Telemetry.ProfilingAddress,
		ApplicationName:   a.cfg.Telemetry.ServiceName,
		BasicAuthUser:     a.cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: a.cfg.Telemetry.ProfilingAuthToken,
		ProfileTypes:      a.cfg.Telemetry.ProfilingTypes,
		Tags:              map[string]string{"component": component, "env": a.cfg.App.Env},
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to start profiler: %w", err)
	}
	if a.profiler.IsEnabled() && a.cfg.Telemetry.SpanProfiles {
		a.tracer.EnableSpanProfiles()
	}
	return nil
}

// newLocker returns the scope locker selected by ledger.lock_backend
func (a *app) newLocker() (shared.ScopeLocker, error) {
	switch a.cfg.Ledger.LockBackend {
	case config.LockBackendPostgres:
		return persistence.NewAdvisoryScopeLocker(a.db.DB, a.metrics), nil
	case config.LockBackendRedis:
		return lock.NewRedisScopeLocker(a.redis, a.cfg.Ledger, a.metrics), nil
	case config.LockBackendLocal:
		a.log.Warn("Using in-process scope locks; run a single ledger instance")
		return persistence.NewLocalScopeLocker(a.cfg.Ledger.LockTimeout, a.metrics), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.cfg.Ledger.LockBackend)
	}
}

// initEvents wires the outbox, the in-process bus and the audit consumer
func (a *app) initEvents() error {
	store, err := cache.NewIdempotencyStore(a.cfg.Event, a.redis, a.log)
	if err != nil {
		return err
	}

	a.serializer = event.NewLedgerEventSerializer()
	a.outbox = event.NewGormOutboxRepository(a.db.DB)
	a.bus = event.NewInMemoryEventBus(a.log)
	a.audit = event.NewIdempotentHandler("audit_log",
		appevent.NewAuditLogHandler(a.log.Named("audit")),
		store, a.log,
		event.WithIdempotencyTTL(a.cfg.Event.IdempotencyTTL),
	)
	a.bus.Subscribe(a.audit)

	publisher := event.NewOutboxPublisher(a.db.DB, a.serializer, a.cfg.Event.MaxRetries)
	a.dispatcher = appevent.NewDispatcher(publisher, a.bus)
	return nil
}

func (a *app) documentRepository() *persistence.GormDocumentRepository {
	return persistence.NewGormDocumentRepository(a.db.DB)
}

func (a *app) postingService() *appledger.PostingService {
	return appledger.NewPostingService(a.documentRepository(), a.txm, a.locker, a.dispatcher, a.metrics)
}

func (a *app) creditNoteService() *appledger.CreditNoteService {
	return appledger.NewCreditNoteService(a.documentRepository(), a.txm)
}

func (a *app) chainVerifier() *appledger.ChainVerifier {
	return appledger.NewChainVerifier(a.documentRepository())
}

func (a *app) allocationService() (*apppayment.AllocationService, error) {
	registry, err := strategyimpl.NewRegistryWithDefaults()
	if err != nil {
		return nil, err
	}
	return apppayment.NewAllocationService(apppayment.AllocationServiceDeps{
		Documents:  a.documentRepository(),
		Payments:   persistence.NewGormPaymentRepository(a.db.DB),
		Settings:   persistence.NewGormToleranceSettingsRepository(a.db.DB),
		Strategies: registry,
		TxManager:  a.txm,
		Locker:     a.locker,
		Journal:    accounting.NewGormJournalSink(a.db.DB),
		Dispatcher: a.dispatcher,
		DefaultTolerance: strategy.TolerancePolicy{
			Percentage: a.cfg.Ledger.TolerancePercentage,
			MaxAmount:  a.cfg.Ledger.ToleranceMaxAmount,
		},
		Metrics: a.metrics,
	}), nil
}

// archiveStore returns the store selected by archive.backend
func (a *app) archiveStore(ctx context.Context) (appledger.ArchiveStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveBackendS3:
		store, err := storage.NewS3ArchiveStore(ctx, &a.cfg.Archive, storage.WithLogger(a.log.Named("archive")))
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.ArchiveBackendMemory:
		a.log.Warn("Archive backend is in-memory; the export is lost when the command exits")
		return storage.NewMemoryArchiveStore(), nil
	default:
		return nil, fmt.Errorf("no archive store configured; set archive.backend")
	}
}

func (a *app) paymentService() *apppayment.PaymentService {
	return apppayment.NewPaymentService(persistence.NewGormPaymentRepository(a.db.DB), a.txm, a.dispatcher)
}

// Close flushes telemetry and releases connections
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.audit != nil {
		stats := a.audit.Metrics().Stats()
		a.log.Debug("Audit consumer stats",
			zap.Int64("processed", stats.EventsProcessed),
			zap.Int64("duplicate", stats.EventsDuplicate),
			zap.Int64("failed", stats.EventsFailed),
		)
	}
	if a.profiler != nil {
		if err := a.profiler.Stop(); err != nil {
			a.log.Error("Error stopping profiler", zap.Error(err))
		}
	}
	if err := a.pool.Stop(); err != nil {
		a.log.Error("Error unregistering pool metrics", zap.Error(err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("Error closing Redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Error closing database", zap.Error(err))
		}
	}
	if a.meter != nil {
		if err := a.meter.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
