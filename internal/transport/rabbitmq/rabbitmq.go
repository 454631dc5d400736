// Package rabbitmq provides the RabbitMQ/AMQP transport. Queues are durable
// and named after their topic, matching the gateway's declared topology.
// Reply destinations get their own topology: exclusive, auto-deleted queues
// that the broker removes when the consuming client disconnects.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/taskgate/internal/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.Register(TransportName, Build)
	transport.RegisterReply(TransportName, BuildReply)
}

// Build creates a new RabbitMQ transport with durable queues.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(cfg, logger, amqp.NewDurableQueueConfig(cfg.GetRabbitMQURL()))
}

// BuildReply creates a RabbitMQ transport for reply destinations. The queues
// it declares are exclusive to the client's connection, auto-deleted, and
// non-durable, so a client run leaves nothing behind on the broker. Only the
// subscriber side declares queues; publishing to the shared request queue is
// unaffected.
func BuildReply(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	amqpConfig := amqp.NewDurableQueueConfig(cfg.GetRabbitMQURL())
	amqpConfig.Queue.Durable = false
	amqpConfig.Queue.AutoDelete = true
	amqpConfig.Queue.Exclusive = true
	return build(cfg, logger, amqpConfig)
}

func build(cfg transport.Config, logger watermill.LoggerAdapter, amqpConfig amqp.Config) (transport.Transport, error) {
	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   cfg.GetRabbitMQURL(),
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}
