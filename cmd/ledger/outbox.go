package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Relay and maintain the event outbox",
}

var outboxRelayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Deliver committed outbox entries to event consumers",
	Long: `Polls the outbox and publishes pending entries until interrupted.
With --once the current backlog is drained and the command exits.`,
	RunE: runOutboxRelay,
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox entry counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := appevent.NewOutboxService(a.outbox, a.log).GetStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(struct {
			*appevent.OutboxStatsDTO
			Backlog int64 `json:"backlog"`
		}{stats, stats.Backlog()})
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue-dead",
	Short: "Give dead letter entries a fresh retry budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := appevent.NewOutboxService(a.outbox, a.log).RequeueDeadEntries(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"requeued": n})
	},
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete delivered entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		retention, _ := cmd.Flags().GetDuration("retention")
		if retention == 0 {
			retention = event.OutboxProcessorConfigFrom(a.cfg.Event).CleanupRetention
		}
		n, err := appevent.NewOutboxService(a.outbox, a.log).PurgeDelivered(cmd.Context(), retention)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"deleted": n})
	},
}

func init() {
	outboxRelayCmd.Flags().Bool("once", false, "drain the backlog and exit")
	outboxPurgeCmd.Flags().Duration("retention", 0, "keep entries delivered within this window (default event.cleanup_retention)")

	outboxCmd.AddCommand(outboxRelayCmd, outboxStatsCmd, outboxRequeueCmd, outboxPurgeCmd)
}

func runOutboxRelay(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	processor := event.NewOutboxProcessor(a.outbox, a.txm, a.bus, a.serializer,
		event.OutboxProcessorConfigFrom(a.cfg.Event), a.log)

	once, _ := cmd.Flags().GetBool("once")
	if once {
		res, err := processor.Drain(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	if err := a.startProfiler("outbox-relay"); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relay goroutines inherit the label from the starting goroutine
	var startErr error
	telemetry.WithProfilingLabels(ctx, map[string]string{"operation": "outbox_relay"}, func(ctx context.Context) {
		startErr = processor.Start(ctx)
	})
	if startErr != nil {
		return startErr
	}
	<-ctx.Done()
	a.log.Info("Shutting down outbox relay")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		a.log.Error("Outbox relay did not stop cleanly", zap.Error(err))
		return err
	}
	return nil
}
