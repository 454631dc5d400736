// Package transport defines the broker abstraction the gateway and client
// run on. Each transport implementation (rabbitmq, nats, kafka, channel)
// lives in its own sub-package and registers itself with the registry.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines the publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports. The
// interface keeps transport packages decoupled from the full config package.
type Config interface {
	GetPubSubSystem() string
	GetRabbitMQURL() string
	GetNATSURL() string
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string
}

// Registry maintains a mapping of transport names to their builders. A
// transport may additionally register a reply builder whose topology suits
// short-lived reply destinations (non-durable, removed with the consumer);
// transports without one serve replies through their regular builder.
type Registry struct {
	mu            sync.RWMutex
	builders      map[string]Builder
	replyBuilders map[string]Builder
}

// DefaultRegistry is the global transport registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new transport registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:      make(map[string]Builder),
		replyBuilders: make(map[string]Builder),
	}
}

// Register adds a transport builder to the registry. The name should match
// the pubsub_system config value.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// RegisterReply adds a builder used for reply destinations.
func (r *Registry) RegisterReply(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replyBuilders[name] = builder
}

// Build creates a transport using the registered builder for the config's
// pubsub system.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	name := cfg.GetPubSubSystem()

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	return builder(ctx, cfg, logger)
}

// BuildReply creates a transport for consuming reply destinations, falling
// back to the regular builder when the transport registered no reply-specific
// one.
func (r *Registry) BuildReply(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	name := cfg.GetPubSubSystem()

	r.mu.RLock()
	builder, ok := r.replyBuilders[name]
	r.mu.RUnlock()

	if !ok {
		return r.Build(ctx, cfg, logger)
	}

	return builder(ctx, cfg, logger)
}

// Names returns the list of registered transport names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

// Has returns true if a transport is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a transport builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterReply adds a reply-destination builder to the default registry.
func RegisterReply(name string, builder Builder) {
	DefaultRegistry.RegisterReply(name, builder)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// BuildReply creates a reply-destination transport using the default registry.
func BuildReply(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.BuildReply(ctx, cfg, logger)
}

// BuildWithRetry attempts to build the transport a bounded number of times,
// waiting between attempts. The broker being down at startup is the expected
// failure here; anything still failing after the last attempt aborts startup.
func BuildWithRetry(ctx context.Context, cfg Config, logger watermill.LoggerAdapter, attempts int, delay time.Duration) (Transport, error) {
	return buildWithRetry(ctx, Build, cfg, logger, attempts, delay)
}

// BuildReplyWithRetry is BuildWithRetry for reply-destination transports.
func BuildReplyWithRetry(ctx context.Context, cfg Config, logger watermill.LoggerAdapter, attempts int, delay time.Duration) (Transport, error) {
	return buildWithRetry(ctx, BuildReply, cfg, logger, attempts, delay)
}

func buildWithRetry(ctx context.Context, build Builder, cfg Config, logger watermill.LoggerAdapter, attempts int, delay time.Duration) (Transport, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		transport, err := build(ctx, cfg, logger)
		if err == nil {
			return transport, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		logger.Info("Failed to connect to broker, retrying", watermill.LogFields{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return Transport{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return Transport{}, fmt.Errorf("could not connect to broker after %d attempts: %w", attempts, lastErr)
}
