// The taskgate daemon consumes request envelopes from the request queue and
// serves the versioned task management API over the configured broker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/drblury/taskgate/internal/auth"
	"github.com/drblury/taskgate/internal/config"
	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/gateway"
	"github.com/drblury/taskgate/internal/handlers"
	handlersv1 "github.com/drblury/taskgate/internal/handlers/v1"
	handlersv2 "github.com/drblury/taskgate/internal/handlers/v2"
	"github.com/drblury/taskgate/internal/idempotency"
	"github.com/drblury/taskgate/internal/logging"

	_ "github.com/drblury/taskgate/internal/transport/channel"
	_ "github.com/drblury/taskgate/internal/transport/kafka"
	_ "github.com/drblury/taskgate/internal/transport/nats"
	_ "github.com/drblury/taskgate/internal/transport/rabbitmq"
)

func main() {
	ctx := context.Background()
	baseLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogServiceLogger(baseLogger)

	conf, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", err, nil)
		os.Exit(1)
	}

	store := domain.NewStore()
	registry := handlers.NewRegistry()
	handlersv1.Register(registry, store)
	handlersv2.Register(registry, store)

	for _, version := range registry.Versions() {
		logger.Info("Registered actions", logging.LogFields{
			"version": version,
			"actions": registry.Actions(version),
		})
	}

	g, err := gateway.New(ctx, conf, logger, gateway.Dependencies{
		Registry: registry,
		Verifier: auth.NewSharedSecret(conf.APIKey),
		Cache:    idempotency.New(conf.IdempotencyTTL),
	})
	if err != nil {
		logger.Error("Failed to create gateway", err, nil)
		os.Exit(1)
	}
	defer g.Close()

	logger.Info("Gateway listening", logging.LogFields{
		"request_queue":  conf.RequestQueue,
		"response_queue": conf.ResponseQueue,
	})

	if err := g.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Gateway stopped", err, nil)
		os.Exit(1)
	}
}
