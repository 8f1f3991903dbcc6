package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plantbuddy/project/internal/app/audit"
	"github.com/plantbuddy/project/internal/messaging"
	"github.com/plantbuddy/project/internal/platform/config"
	"github.com/plantbuddy/project/internal/platform/logging"
	"github.com/plantbuddy/project/internal/platform/natsutil"
	"github.com/plantbuddy/project/internal/sharding"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := natsutil.ConnectWithRetry(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("connect nats", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	service := audit.NewService(audit.LogSink{Logger: logger.With("component", "care-audit")})

	sub, err := client.JS.QueueSubscribe(sharding.CareSubjects, cfg.NATS.Durable, func(msg *nats.Msg) {
		var streamSeq uint64
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			streamSeq = meta.Sequence.Stream
		}

		handleCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := service.Handle(handleCtx, msg.Data, streamSeq); err != nil {
			if errors.Is(err, audit.ErrInvalidEventPayload) || errors.Is(err, audit.ErrUnsupportedEventType) {
				logger.Warn("discarding care event", "subject", msg.Subject, "error", err)
				_ = msg.Term()
				return
			}
			logger.Error("care event not recorded", "subject", msg.Subject, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(cfg.NATS.Durable), nats.BindStream(messaging.CareStream), nats.ManualAck())
	if err != nil {
		logger.Error("subscribe", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sub.Drain() }()

	logger.Info("care-audit listening", "subject", sub.Subject, "stream", messaging.CareStream)
	<-ctx.Done()
}
