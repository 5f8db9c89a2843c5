package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"blueprint-auth/internal/telemetry/loki"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type eventPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// forward copies audit events from reader to pusher until ctx is done. Push
// failures are logged and the message is skipped.
func forward(ctx context.Context, reader messageReader, pusher eventPusher, logger *slog.Logger) error {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WarnContext(ctx, "kafka read failed", "error", err)
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pusher.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.WarnContext(ctx, "loki push failed", "error", err, "offset", msg.Offset)
		}
		cancel()
	}
}

func newForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-forward",
		Short: "Forward audit events from Kafka to Loki",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			brokers := cfg.TelemetryKafkaBrokersList()
			if len(brokers) == 0 {
				return oops.Code("CONFIG_INVALID").Errorf("KAFKA_BROKERS is required")
			}
			client, err := loki.NewClient(cfg.LokiURL, "blueprint-auth", nil)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}

			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:        brokers,
				Topic:          cfg.TelemetryKafkaTopic,
				GroupID:        cfg.KafkaGroupID,
				MinBytes:       1,
				MaxBytes:       10e6,
				MaxWait:        time.Second,
				CommitInterval: time.Second,
			})
			defer reader.Close()

			ctx := cmd.Context()
			slog.InfoContext(ctx, "forwarding audit events",
				"topic", cfg.TelemetryKafkaTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)
			return forward(ctx, reader, client, slog.Default())
		},
	}
}
