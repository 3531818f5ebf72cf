package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessorConfigFrom derives the processor settings from the event config
func OutboxProcessorConfigFrom(cfg config.EventConfig) OutboxProcessorConfig {
	c := DefaultOutboxProcessorConfig()
	if cfg.BatchSize > 0 {
		c.BatchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		c.PollInterval = cfg.PollInterval
	}
	if cfg.CleanupRetention > 0 {
		c.CleanupRetention = cfg.CleanupRetention
	}
	return c
}

// DrainResult counts what one Drain call did
type DrainResult struct {
	Delivered int
	Failed    int
	Dead      int
}

// OutboxProcessor relays committed outbox entries to the event bus. Delivery
// is at least once; consumers deduplicate by event id.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	txm        shared.TransactionManager
	eventBus   shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	txm shared.TransactionManager,
	eventBus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		txm:        txm,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// Start runs the poll loop, plus the cleanup loop when enabled, until Stop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("Outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for them, bounded by ctx
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain delivers batches until the backlog is empty or a batch makes no
// progress. Failed entries stay deliverable for the next call.
func (p *OutboxProcessor) Drain(ctx context.Context) (DrainResult, error) {
	var total DrainResult
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, n, err := p.processBatch(ctx)
		total.Delivered += batch.Delivered
		total.Failed += batch.Failed
		total.Dead += batch.Dead
		if err != nil {
			return total, err
		}
		if n < p.config.BatchSize || batch.Delivered == 0 {
			return total, nil
		}
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.Drain(ctx)
			if err != nil && ctx.Err() == nil {
				p.logger.Error("Outbox drain failed", zap.Error(err))
			}
			if res.Delivered+res.Failed+res.Dead > 0 {
				p.logger.Debug("Outbox drained",
					zap.Int("delivered", res.Delivered),
					zap.Int("failed", res.Failed),
					zap.Int("dead", res.Dead),
				)
			}
		}
	}
}

// processBatch claims one batch inside a transaction and records the
// outcome of every entry before committing
func (p *OutboxProcessor) processBatch(ctx context.Context) (DrainResult, int, error) {
	var res DrainResult
	var n int
	err := p.txm.WithinTransaction(ctx, func(ctx context.Context) error {
		res = DrainResult{}
		entries, err := p.repo.FindDeliverable(ctx, p.config.BatchSize)
		if err != nil {
			return err
		}
		n = len(entries)
		for _, entry := range entries {
			p.deliver(ctx, entry)
			switch entry.Status {
			case shared.OutboxStatusSent:
				res.Delivered++
			case shared.OutboxStatusDead:
				res.Dead++
			default:
				res.Failed++
			}
			if err := p.repo.Update(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	return res, n, err
}

// deliver publishes one entry and updates its status in memory
func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("tenant_id", entry.TenantID.String()),
	}

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.eventBus.Publish(ctx, event)
	}
	if err != nil {
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			p.logger.Warn("Outbox entry moved to dead letter",
				append(fields,
					zap.String("aggregate_type", entry.AggregateType),
					zap.String("aggregate_id", entry.AggregateID.String()),
					zap.Int("retry_count", entry.RetryCount),
					zap.String("last_error", entry.LastError),
				)...)
			return
		}
		p.logger.Error("Outbox delivery failed", append(fields, zap.Error(err))...)
		return
	}

	entry.MarkSent()
	p.logger.Debug("Outbox entry delivered", fields...)
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

// cleanup removes entries delivered before the retention window
func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to purge outbox", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("Purged delivered outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
